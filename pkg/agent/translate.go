package agent

import "context"

// CompletePayload is the wrapper the harness emits when an agent has no
// OutputSchema: {agent, output} (spec §4.4, "otherwise the harness emits
// a wrapper payload {agent, output: content}").
type CompletePayload struct {
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

// Translate implements the spec §4.4 output-to-signal translation rule.
// It returns the signal name to emit and the payload to carry, resolving
// StructuredOutput via extractor when the adapter declared an
// OutputSchema but did not set StructuredOutput directly.
//
// Translate does not emit anything itself or touch state; the harness
// calls it, emits the resulting signal through the hub (which runs the
// Updates reducer as a side effect of that emission), and records the
// activation.
func Translate(ctx context.Context, def Definition, out Output, extractor *Extractor) (name string, payload any, err error) {
	if def.OutputSchema == nil {
		return def.EmitName(), CompletePayload{Agent: def.Name, Output: out.Content}, nil
	}

	structured := out.StructuredOutput
	if structured == nil {
		structured, err = extractor.Extract(ctx, def.OutputSchema.Query, out.Content)
		if err != nil {
			return "", nil, err
		}
	}
	return def.EmitName(), structured, nil
}
