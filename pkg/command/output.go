package command

import (
	"sync"
	"unicode/utf8"
)

// DefaultOutputLimit is the per-stream character budget.
const DefaultOutputLimit = 200_000

// cappedBuffer keeps the head of a stream and discards the rest. It keeps
// enough bytes for limit characters of UTF-8 so the final rune cut is exact.
// Write never fails, so a chatty child is not killed by a broken pipe.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newCappedBuffer(chars int) *cappedBuffer {
	return &cappedBuffer{limit: chars * utf8.UTFMax}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// truncateChars cuts s to at most max characters, dropping the tail.
func truncateChars(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
