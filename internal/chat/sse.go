package chat

import (
	"errors"
	"io"
	"iter"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const (
	frameDelimiter = "\n\n"
	dataPrefix     = "data: "
	readChunkSize  = 4 * 1024
)

// FrameDecoder splits decoded text into SSE frames. Text that has not yet
// been terminated by a blank line stays buffered until the next Feed.
type FrameDecoder struct {
	buf strings.Builder
}

// Feed appends text and returns the payloads of every frame it completed.
// Frames without data lines are dropped.
func (d *FrameDecoder) Feed(text string) []string {
	if text == "" {
		return nil
	}
	d.buf.WriteString(text)
	if !strings.Contains(d.buf.String(), frameDelimiter) {
		return nil
	}

	parts := strings.Split(d.buf.String(), frameDelimiter)
	rest := parts[len(parts)-1]
	d.buf.Reset()
	d.buf.WriteString(rest)

	var out []string
	for _, frame := range parts[:len(parts)-1] {
		if strings.TrimSpace(frame) == "" {
			continue
		}
		if p := FramePayload(frame); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Pending reports buffered text that has not been closed by a delimiter.
func (d *FrameDecoder) Pending() string { return d.buf.String() }

// FramePayload concatenates the "data: " lines of one frame.
func FramePayload(frame string) string {
	var b strings.Builder
	for _, line := range strings.Split(frame, "\n") {
		if rest, ok := strings.CutPrefix(line, dataPrefix); ok {
			b.WriteString(rest)
		}
	}
	return b.String()
}

// Payloads lazily yields frame payloads read from r. Multi-byte characters
// split across reads are carried over by the UTF-8 decoder. A trailing
// fragment without a frame delimiter is discarded at EOF. A read error is
// yielded once and ends the sequence.
func Payloads(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text := unicode.UTF8.NewDecoder().Reader(r)
		var dec FrameDecoder
		buf := make([]byte, readChunkSize)
		for {
			n, err := text.Read(buf)
			if n > 0 {
				for _, p := range dec.Feed(string(buf[:n])) {
					if !yield(p, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}
