package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/grimoire/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued results are returned first; once a queue is drained the mock
// falls back to deterministic values so concurrent tests stay predictable.
type MockRandom struct {
	mu sync.Mutex

	intnResults   []int
	stringResults []string
	idResults     []string
	tokenResults  []string

	idSeq    int
	tokenSeq int
	codeSeq  int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intnResults) == 0 {
		return 0
	}
	result := r.intnResults[0]
	r.intnResults = r.intnResults[1:]
	if n > 0 {
		result %= n
	}
	return result
}

// String returns the next queued result, or a sequential code drawn from the
// alphabet if none remaining
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stringResults) > 0 {
		result := r.stringResults[0]
		r.stringResults = r.stringResults[1:]
		return result
	}
	if length <= 0 || len(alphabet) == 0 {
		return ""
	}
	n := r.codeSeq
	r.codeSeq++
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = alphabet[n%len(alphabet)]
		n /= len(alphabet)
	}
	return string(out)
}

// ID returns the next queued id, or "id-<n>"
func (r *MockRandom) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.idResults) > 0 {
		result := r.idResults[0]
		r.idResults = r.idResults[1:]
		return result
	}
	r.idSeq++
	return fmt.Sprintf("id-%d", r.idSeq)
}

// Token returns the next queued token, or "token-<n>"
func (r *MockRandom) Token() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tokenResults) > 0 {
		result := r.tokenResults[0]
		r.tokenResults = r.tokenResults[1:]
		return result, nil
	}
	r.tokenSeq++
	return fmt.Sprintf("token-%d", r.tokenSeq), nil
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = append(r.intnResults, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stringResults = append(r.stringResults, values...)
}

// QueueID adds values to the ID result queue
func (r *MockRandom) QueueID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idResults = append(r.idResults, values...)
}

// QueueToken adds values to the Token result queue
func (r *MockRandom) QueueToken(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenResults = append(r.tokenResults, values...)
}

// Reset clears all queued results and sequences
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intnResults = nil
	r.stringResults = nil
	r.idResults = nil
	r.tokenResults = nil
	r.idSeq, r.tokenSeq, r.codeSeq = 0, 0, 0
}
