package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

const (
	defaultExtractTimeout      = 2 * time.Second
	defaultExtractMaxInputSize = 10 * 1024 * 1024
)

// Extractor pulls a structured value out of an execution adapter's raw
// text content when the adapter itself did not return StructuredOutput
// directly. It is grounded on the teacher's internal/jq.Executor, reused
// here as the mechanism behind an agent's outputSchema declaration
// (spec §4.4) since schema-validation libraries are explicitly out of
// scope (§1) — extraction, not validation, is what this module owns.
type Extractor struct {
	timeout      time.Duration
	maxInputSize int64
}

// NewExtractor creates an Extractor with the given limits. A zero
// timeout or maxInputSize falls back to the package defaults.
func NewExtractor(timeout time.Duration, maxInputSize int64) *Extractor {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	if maxInputSize <= 0 {
		maxInputSize = defaultExtractMaxInputSize
	}
	return &Extractor{timeout: timeout, maxInputSize: maxInputSize}
}

// Extract parses content as JSON and applies query (a jq expression) to
// it. An empty query returns the parsed JSON value unchanged. Content
// that is not valid JSON is rejected with an error; a schema-bearing
// agent whose adapter returns prose rather than JSON should declare no
// query and instead set StructuredOutput itself.
func (e *Extractor) Extract(ctx context.Context, query string, content string) (any, error) {
	if int64(len(content)) > e.maxInputSize {
		return nil, fmt.Errorf("extract: content size (%d bytes) exceeds maximum (%d bytes)", len(content), e.maxInputSize)
	}

	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, fmt.Errorf("extract: content is not valid JSON: %w", err)
	}

	if query == "" {
		return data, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("extract: parse query: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("extract: compile query: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		iter := code.Run(data)
		var results []any
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := v.(error); isErr {
				done <- outcome{err: err}
				return
			}
			results = append(results, v)
		}
		switch len(results) {
		case 0:
			done <- outcome{value: nil}
		case 1:
			done <- outcome{value: results[0]}
		default:
			done <- outcome{value: results}
		}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-execCtx.Done():
		return nil, fmt.Errorf("extract: query execution timed out after %v", e.timeout)
	}
}

// ValidateQuery checks that query compiles without running it. Empty
// queries are always valid.
func ValidateQuery(query string) error {
	if query == "" {
		return nil
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return fmt.Errorf("invalid jq expression: %w", err)
	}
	if _, err := gojq.Compile(parsed); err != nil {
		return fmt.Errorf("jq compilation failed: %w", err)
	}
	return nil
}
