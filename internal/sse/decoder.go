// Package sse implements the text event-stream framing used by the analysis
// service: frames separated by a blank line, each a sequence of
// "event:" / "data:" lines.
package sse

import (
	"bytes"
)

// frameTerminator separates frames on the wire.
var frameTerminator = []byte("\n\n")

// Decoder accumulates raw chunks and splits them into complete frames.
// A terminator may fall across chunk boundaries, so undecoded bytes stay
// buffered until the next Feed. Buffering bytes rather than text keeps
// multi-byte characters intact when a chunk ends mid-rune.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffer and returns the text of every frame
// completed by it, in order. Whitespace-only frames are discarded.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var frames []string
	for {
		idx := bytes.Index(d.buf, frameTerminator)
		if idx < 0 {
			break
		}
		frame := d.buf[:idx]
		d.buf = d.buf[idx+len(frameTerminator):]
		if len(bytes.TrimSpace(frame)) == 0 {
			continue
		}
		frames = append(frames, string(frame))
	}

	// Compact so a long stream does not pin an ever-growing backing array.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return frames
}

// Pending returns the bytes buffered after the last complete frame.
func (d *Decoder) Pending() string {
	return string(d.buf)
}
