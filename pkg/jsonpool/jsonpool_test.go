package jsonpool

import (
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalLines(t *testing.T) {
	values := []map[string]interface{}{
		{"vid": 1},
		{"vid": 2},
	}

	out, err := MarshalLines(values)
	require.NoError(t, err)

	lines := strings.Split(string(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"vid":1}`, lines[0])
	assert.Equal(t, `{"vid":2}`, lines[1])
	assert.False(t, strings.HasSuffix(string(out), "\n"))
}

func TestMarshalLinesEmpty(t *testing.T) {
	out, err := MarshalLines(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecoderPreservesLargeNumbers(t *testing.T) {
	dec := GetDecoder(strings.NewReader(`{"offset":9007199254740993}`))

	var body interface{}
	require.NoError(t, dec.Decode(&body))

	m := body.(map[string]interface{})
	num, ok := m["offset"].(gojson.Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", num.String())
}

func TestEncoderDoesNotEscapeHTML(t *testing.T) {
	out, err := MarshalLines([]map[string]interface{}{
		{"url": "https://example.com/a?b=1&c=2"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), "b=1&c=2")
}
