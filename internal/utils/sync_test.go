package utils_test

import (
	"sync"
	"testing"

	"github.com/memphis242/ccol-sub000/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestOptionalMutexDisabled(t *testing.T) {
	var m utils.OptionalMutex

	m.Lock()
	m.Lock()
	m.Unlock()
	m.Unlock()

	require.True(t, m.Mutex.TryLock())
	m.Mutex.Unlock()
}

func TestOptionalMutexEnabled(t *testing.T) {
	m := utils.OptionalMutex{UseMutex: true}

	m.Lock()
	require.False(t, m.Mutex.TryLock())
	m.Unlock()

	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			defer m.Unlock()
			count++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, count)
}

func TestOptionalRWMutexReaders(t *testing.T) {
	m := utils.OptionalRWMutex{UseMutex: true}

	m.RLock()
	m.RLock()
	require.False(t, m.Mutex.TryLock())
	m.RUnlock()
	m.RUnlock()

	m.Lock()
	require.False(t, m.Mutex.TryRLock())
	m.Unlock()
}
