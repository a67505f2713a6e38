package csv

// streaming.go wraps input streams before tokenizing:
//
//   - Sanitize strips a leading UTF-8 BOM (common in files saved by Windows
//     programs) and replaces invalid UTF-8 with U+FFFD, on the fly.
//   - CountingReader tracks bytes consumed for progress and logging.

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Sanitize returns a reader that drops a leading BOM and repairs invalid
// UTF-8 without buffering the whole input.
func Sanitize(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
}

// CountingReader counts the bytes read through it. It is safe to read the
// count from another goroutine while the stream is being consumed.
type CountingReader struct {
	r     io.Reader
	n     atomic.Int64
	total int64
}

// NewCountingReader wraps r. total is the expected size, or 0 if unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, total: total}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (c *CountingReader) BytesRead() int64 {
	return c.n.Load()
}

// Progress returns the read progress as a percentage (0-100), or 0 when the
// total is unknown.
func (c *CountingReader) Progress() int {
	if c.total <= 0 {
		return 0
	}
	p := int(c.n.Load() * 100 / c.total)
	if p > 100 {
		p = 100
	}
	return p
}
