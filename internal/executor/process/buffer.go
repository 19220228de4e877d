package process

import "bytes"

const truncatedMarker = "\n[output truncated]"

// OutputBuffer keeps the first max bytes written to it and silently drops the
// rest. It always reports a full write so the copying goroutine keeps draining
// the pipe and the child never blocks on a full pipe.
//
// An OutputBuffer is not safe for concurrent writes.
type OutputBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

// NewOutputBuffer returns a buffer capped at max bytes. A max of zero or less
// disables the cap.
func NewOutputBuffer(max int) *OutputBuffer {
	return &OutputBuffer{max: max}
}

func (b *OutputBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		b.buf.Write(p)
		return len(p), nil
	}
	room := b.max - b.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *OutputBuffer) String() string {
	if b.truncated {
		return b.buf.String() + truncatedMarker
	}
	return b.buf.String()
}
