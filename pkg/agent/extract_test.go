package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractWithEmptyQueryReturnsParsedJSON(t *testing.T) {
	e := NewExtractor(0, 0)
	v, err := e.Extract(context.Background(), "", `{"ok":true}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, v)
}

func TestExtractAppliesJQQuery(t *testing.T) {
	e := NewExtractor(0, 0)
	v, err := e.Extract(context.Background(), ".result.count", `{"result":{"count":3}}`)
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)
}

func TestExtractRejectsNonJSONContent(t *testing.T) {
	e := NewExtractor(0, 0)
	_, err := e.Extract(context.Background(), "", "not json")
	assert.Error(t, err)
}

func TestExtractRejectsOversizedContent(t *testing.T) {
	e := NewExtractor(0, 4)
	_, err := e.Extract(context.Background(), "", `{"a":1}`)
	assert.Error(t, err)
}

func TestValidateQueryCatchesBadSyntax(t *testing.T) {
	assert.NoError(t, ValidateQuery(""))
	assert.NoError(t, ValidateQuery(".a.b"))
	assert.Error(t, ValidateQuery("..."))
}
