package keymutex

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 128

// KeyMutex provides mutual exclusion per string key using a fixed set of
// striped mutexes. Two distinct keys may share a stripe; a key always maps
// to the same stripe, so operations on one key never interleave.
type KeyMutex struct {
	stripes []sync.Mutex
}

func New(stripes int) *KeyMutex {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &KeyMutex{stripes: make([]sync.Mutex, stripes)}
}

func (m *KeyMutex) Lock(key string) {
	m.stripes[m.index(key)].Lock()
}

func (m *KeyMutex) Unlock(key string) {
	m.stripes[m.index(key)].Unlock()
}

func (m *KeyMutex) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(m.stripes))
}
