// Package json provides pooled goccy/go-json encoding and JSON-lines
// streaming for bulkflow.
package json

import (
	"bytes"
	"errors"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is a JSON number kept as its literal text.
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal encodes v through a pooled buffer without HTML escaping and
// without the trailing newline an Encoder adds.
func Marshal(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	// Create a copy since we're returning the buffer to the pool
	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// LineDecoder reads a stream of JSON objects, one per line. Numbers are
// kept as Number so integers do not lose precision.
type LineDecoder struct {
	dec  *gojson.Decoder
	line int
}

// NewLineDecoder creates a decoder over r.
func NewLineDecoder(r io.Reader) *LineDecoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return &LineDecoder{dec: dec}
}

// Line returns the 1-based index of the last object attempted, so errors
// from Next can name the offending record.
func (d *LineDecoder) Line() int {
	return d.line
}

// Next decodes the next object. It returns io.EOF at the end of input.
func (d *LineDecoder) Next() (map[string]any, error) {
	var row map[string]any
	d.line++
	if err := d.dec.Decode(&row); err != nil {
		if errors.Is(err, io.EOF) {
			d.line--
			return nil, io.EOF
		}
		return nil, err
	}
	if row == nil {
		return nil, errors.New("expected a JSON object")
	}
	return row, nil
}

// StreamingEncoder writes values as JSON lines or as one JSON array.
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
	err         error
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)

	se := &StreamingEncoder{
		writer:      w,
		encoder:     enc,
		firstRecord: true,
		isArray:     isArray,
	}
	if isArray {
		se.write([]byte{'['})
	}
	return se
}

func (se *StreamingEncoder) write(b []byte) {
	if se.err == nil {
		_, se.err = se.writer.Write(b)
	}
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray {
		if !se.firstRecord {
			se.write([]byte{','})
		}
		se.firstRecord = false
	}
	if se.err != nil {
		return se.err
	}
	// The encoder terminates each value with a newline
	se.err = se.encoder.Encode(v)
	return se.err
}

// Close finalizes the encoding
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		se.write([]byte{']'})
	}
	return se.err
}
