package ekamcp

import (
	"net/url"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolResultRendersPayload(t *testing.T) {
	result, err := toolResult(map[string]any{"id": "p1"}, nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, map[string]any{"id": "p1"}, result.StructuredContent)
}

func TestToolResultRendersAPIError(t *testing.T) {
	apiErr := &APIError{Kind: ErrUpstream, Message: "Not Supported", StatusCode: 400}
	result, err := toolResult(nil, apiErr)
	require.NoError(t, err, "tool errors are rendered, not returned, so the model sees them")
	require.True(t, result.IsError)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "upstream error")
	assert.Contains(t, text.Text, "HTTP 400")
	assert.Contains(t, text.Text, "Not Supported")
}

func TestSetIfPresent(t *testing.T) {
	params := url.Values{}
	setIfPresent(params, "doctor_id", "d1")
	setIfPresent(params, "clinic_id", "")

	assert.Equal(t, "d1", params.Get("doctor_id"))
	assert.False(t, params.Has("clinic_id"))
}
