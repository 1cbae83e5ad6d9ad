package core

// streaming.go wraps CSV input so imports run in constant memory:
//
//   - a leading UTF-8 byte order mark is dropped
//   - invalid UTF-8 bytes become '?'
//   - bytes read are counted for logs and metrics
//
// wrapImport applies all three in that order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader over r without a leading byte order mark.
func skipBOM(r io.Reader) *bufio.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer replaces each invalid UTF-8 byte with '?'. A genuine
// U+FFFD in the input passes through unchanged.
type utf8Sanitizer struct {
	r *bufio.Reader
	// encoded bytes of the last rune that did not fit in p
	pending []byte
	// read error held back until the bytes before it are consumed
	err error
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &utf8Sanitizer{r: br}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	if n == 0 && s.err != nil {
		return 0, s.err
	}

	var buf [utf8.UTFMax]byte
	for n < len(p) && s.err == nil {
		r, size, err := s.r.ReadRune()
		if err != nil {
			if n > 0 {
				s.err = err
				return n, nil
			}
			return 0, err
		}
		if r == utf8.RuneError && size == 1 {
			r = '?'
		}
		k := utf8.EncodeRune(buf[:], r)
		c := copy(p[n:], buf[:k])
		n += c
		if c < k {
			s.pending = append(s.pending, buf[c:k]...)
			break
		}
	}
	return n, nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// wrapImport prepares raw upload bytes for the CSV reader. The returned
// counter sees the raw bytes, before any rewriting.
func wrapImport(r io.Reader) (io.Reader, *countingReader) {
	counter := &countingReader{r: r}
	return newUTF8Sanitizer(skipBOM(counter)), counter
}
