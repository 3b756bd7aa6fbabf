package agent

import (
	"github.com/open-harness/openharness/pkg/signal"
	"github.com/open-harness/openharness/pkg/state"
)

// UpdateReducer builds the reducer the harness registers for
// def.EmitName() when def.Updates is set, so that the state write lands
// atomically with the completion signal's emission (spec §4.4: "the
// harness emits a 'raw' signal; the registered reducer for that signal
// writes the key").
func UpdateReducer(def Definition) state.Reducer {
	key := def.Updates
	return func(draft *state.Draft, sig signal.Signal) error {
		draft.Set(key, sig.Payload)
		return nil
	}
}
