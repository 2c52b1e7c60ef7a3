package proxy

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotation_RoundRobin(t *testing.T) {
	r := NewRotation("a", "b", "c")

	var got []string
	for i := 0; i < 7; i++ {
		endpoint, ok := r.Next()
		require.True(t, ok)
		got = append(got, endpoint)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)
}

func TestRotation_EmptyPool(t *testing.T) {
	r := NewRotation()
	endpoint, ok := r.Next()
	assert.False(t, ok, "an empty pool degrades to a direct connection")
	assert.Empty(t, endpoint)
	assert.Zero(t, r.Len())
}

func TestRotation_AddRejectsDuplicatesAndBlanks(t *testing.T) {
	r := NewRotation()
	r.Add("10.0.0.1:1080")
	r.Add("10.0.0.1:1080")
	r.Add("  10.0.0.1:1080  ")
	r.Add("")
	r.Add("   ")
	assert.Equal(t, 1, r.Len())

	r.Add("10.0.0.2:1080")
	assert.Equal(t, []string{"10.0.0.1:1080", "10.0.0.2:1080"}, r.Endpoints())
}

func TestRotation_LoadReplacesPoolAndResetsCursor(t *testing.T) {
	r := NewRotation("old-a", "old-b")
	_, _ = r.Next() // advance the cursor off zero

	n := r.Load([]string{"x", "", "y", "x", "  ", "z"})
	assert.Equal(t, 3, n)

	endpoint, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, "x", endpoint, "load resets the cursor to the front")
	assert.Equal(t, []string{"x", "y", "z"}, r.Endpoints())
}

func TestRotation_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("one:1080\n\ntwo:1080\n  \nthree:1080\n"), 0o644))

	r := NewRotation()
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"one:1080", "two:1080", "three:1080"}, r.Endpoints())
}

func TestRotation_LoadFileMissing(t *testing.T) {
	r := NewRotation()
	_, err := r.LoadFile(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

// Under concurrent callers the issued sequence must remain a cyclic
// permutation: over any full set of calls no endpoint is skipped or starved.
func TestRotation_ConcurrentNextStaysFair(t *testing.T) {
	r := NewRotation("a", "b", "c")

	const goroutines = 10
	const callsEach = 30 // total 300, divisible by pool size

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsEach; j++ {
				endpoint, ok := r.Next()
				assert.True(t, ok)
				mu.Lock()
				counts[endpoint]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, counts, 3)
	for endpoint, count := range counts {
		assert.Equal(t, goroutines*callsEach/3, count, "endpoint %s not issued fairly", endpoint)
	}
}
