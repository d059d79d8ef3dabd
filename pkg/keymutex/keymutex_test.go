package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameKey(t *testing.T) {
	m := New(8)

	const goroutines = 32
	const increments = 100

	counter := 0
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				m.Lock("wallet-1")
				counter++
				m.Unlock("wallet-1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*increments, counter)
}

func TestSameKeySameStripe(t *testing.T) {
	m := New(64)
	assert.Equal(t, m.index("acct-42"), m.index("acct-42"))
}

func TestZeroStripesDefaults(t *testing.T) {
	m := New(0)
	assert.Len(t, m.stripes, defaultStripes)
}
