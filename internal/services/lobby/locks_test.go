package lobby

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockTableSerializesSameLobby(t *testing.T) {
	table := NewLockTable()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := table.Acquire("lobby-1")
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, table.Len())
}

func TestLockTableAllowsDifferentLobbies(t *testing.T) {
	table := NewLockTable()
	releaseA := table.Acquire("lobby-a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := table.Acquire("lobby-b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different lobby blocked")
	}
}

func TestLockTableReleaseIsIdempotent(t *testing.T) {
	table := NewLockTable()
	release := table.Acquire("lobby-1")
	release()
	release()
	assert.Equal(t, 0, table.Len())

	again := table.Acquire("lobby-1")
	again()
}
