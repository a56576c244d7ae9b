package json

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	data, err := Marshal(map[string]any{"html": "<b>", "n": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<b>","n":1}`, string(data))

	var out map[string]any
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, "<b>", out["html"])
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("stale")
	PutBuffer(buf)

	assert.Zero(t, GetBuffer().Len())

	big := bytes.NewBuffer(make([]byte, 0, 2*1024*1024))
	PutBuffer(big)
}

func TestLineDecoder(t *testing.T) {
	dec := NewLineDecoder(strings.NewReader("{\"id\": 9007199254740993}\n\n{\"id\": 2.5}\n"))

	row, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Number("9007199254740993"), row["id"])
	assert.Equal(t, 1, dec.Line())

	row, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Number("2.5"), row["id"])

	_, err = dec.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestLineDecoderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"null", "null\n"},
		{"truncated", `{"id":`},
		{"array", `[1, 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLineDecoder(strings.NewReader(tt.input)).Next()
			require.Error(t, err)
			assert.False(t, errors.Is(err, io.EOF))
		})
	}
}

func TestStreamingEncoder(t *testing.T) {
	tests := []struct {
		name    string
		isArray bool
		want    string
	}{
		{"lines", false, "{\"a\":1}\n{\"a\":2}\n"},
		{"array", true, "[{\"a\":1}\n,{\"a\":2}\n]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			enc := NewStreamingEncoder(&buf, tt.isArray)
			require.NoError(t, enc.Encode(map[string]int{"a": 1}))
			require.NoError(t, enc.Encode(map[string]int{"a": 2}))
			require.NoError(t, enc.Close())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

func TestStreamingEncoderWriteError(t *testing.T) {
	enc := NewStreamingEncoder(failingWriter{}, true)
	assert.ErrorIs(t, enc.Encode(1), io.ErrShortWrite)
	assert.ErrorIs(t, enc.Close(), io.ErrShortWrite)
}
