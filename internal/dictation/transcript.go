package dictation

import (
	"strings"
	"sync"
)

// TranscriptBuffer accumulates transcript text for one session.
type TranscriptBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (t *TranscriptBuffer) Append(text string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.WriteString(text)
	return t.b.String()
}

func (t *TranscriptBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.b.String()
}

func (t *TranscriptBuffer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.Reset()
}
