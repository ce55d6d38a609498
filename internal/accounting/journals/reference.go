package journals

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReferenceGenerator issues journal references.
type ReferenceGenerator interface {
	Next(now time.Time) string
}

// ULIDReferences produces "<prefix>-<ULID>" references, monotonic within a millisecond.
type ULIDReferences struct {
	prefix  string
	mu      sync.Mutex
	entropy io.Reader
}

// NewULIDReferences constructs a generator. An empty prefix defaults to "JE".
func NewULIDReferences(prefix string) *ULIDReferences {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "JE"
	}
	return &ULIDReferences{prefix: prefix, entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a fresh reference.
func (g *ULIDReferences) Next(now time.Time) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), g.entropy)
	g.mu.Unlock()
	return g.prefix + "-" + id.String()
}
