package frame

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
)

var delim = []byte(Delimiter)

// Decoder recovers frames from a byte stream delivered in arbitrary pieces.
// It never blocks: output is purely a function of the bytes fed so far.
type Decoder struct {
	buf []byte
	log zerolog.Logger
}

// NewDecoder creates a decoder. Malformed records are reported to log at
// debug level and skipped.
func NewDecoder(log zerolog.Logger) *Decoder {
	return &Decoder{log: log}
}

// Feed appends p to the internal buffer and returns every complete frame
// now available, in stream order.
func (d *Decoder) Feed(p []byte) []Frame {
	d.buf = append(d.buf, p...)

	var frames []Frame
	for {
		idx := bytes.Index(d.buf, delim)
		if idx < 0 {
			break
		}
		record := d.buf[:idx]
		d.buf = d.buf[idx+len(delim):]

		if f, ok := d.decode(record); ok {
			frames = append(frames, f)
		}
	}

	// Reclaim the consumed prefix once the buffer has been fully drained.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return frames
}

// Flush attempts to decode whatever remains after the stream ends. A
// trailing buffer that does not parse is discarded without error.
func (d *Decoder) Flush() (Frame, bool) {
	rest := bytes.TrimSpace(d.buf)
	d.buf = nil
	if len(rest) == 0 {
		return Frame{}, false
	}
	var f Frame
	if err := json.Unmarshal(rest, &f); err != nil {
		d.log.Debug().Int("bytes", len(rest)).Msg("discarding partial trailing frame")
		return Frame{}, false
	}
	return f, true
}

// Buffered returns the number of bytes waiting for a delimiter.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) decode(record []byte) (Frame, bool) {
	record = bytes.TrimSpace(record)
	if len(record) == 0 {
		return Frame{}, false
	}
	var f Frame
	if err := json.Unmarshal(record, &f); err != nil {
		d.log.Debug().Err(err).Int("bytes", len(record)).Msg("skipping malformed frame")
		return Frame{}, false
	}
	return f, true
}
