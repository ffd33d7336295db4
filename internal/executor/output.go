package executor

import (
	"bytes"
	"fmt"

	"github.com/dustin/go-humanize"
)

// CappedBuffer collects a stream up to a byte ceiling and silently discards
// the rest. Writes never fail, so a chatty child keeps draining its pipe
// instead of blocking or dying on EPIPE.
//
// A CappedBuffer is not safe for concurrent writers; give each stream its
// own buffer.
type CappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// NewCappedBuffer returns a buffer that keeps at most limit bytes. A limit
// of zero or less means no ceiling.
func NewCappedBuffer(limit int) *CappedBuffer {
	return &CappedBuffer{limit: limit}
}

func (c *CappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if c.limit <= 0 {
		c.buf.Write(p)
		return n, nil
	}

	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return n, nil
	}
	if len(p) > room {
		p = p[:room]
		c.truncated = true
	}
	c.buf.Write(p)
	return n, nil
}

// Truncated reports whether anything was dropped.
func (c *CappedBuffer) Truncated() bool {
	return c.truncated
}

// String returns the collected text, followed by a marker line if the
// ceiling was hit.
func (c *CappedBuffer) String() string {
	if !c.truncated {
		return c.buf.String()
	}
	return c.buf.String() + fmt.Sprintf("\n[output truncated: exceeded %s]\n", humanize.IBytes(uint64(c.limit)))
}
