package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreAppendKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(3)

	for _, content := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Append(ctx, 1, RoleUser, content))
	}

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "b", history[0].Content)
	assert.Equal(t, "c", history[1].Content)
	assert.Equal(t, "d", history[2].Content)
}

func TestLocalStoreBoundProperty(t *testing.T) {
	ctx := context.Background()
	const bound = 6

	for _, n := range []int{0, 1, 5, 6, 7, 40} {
		store := NewLocalStore(bound)
		for i := 0; i < n; i++ {
			require.NoError(t, store.Append(ctx, 7, RoleUser, fmt.Sprintf("msg-%d", i)))
		}

		history, err := store.History(ctx, 7)
		require.NoError(t, err)

		want := n
		if want > bound {
			want = bound
		}
		require.Len(t, history, want, "after %d appends", n)

		// Retained entries are exactly the most recent ones, in order.
		for i, e := range history {
			assert.Equal(t, fmt.Sprintf("msg-%d", n-want+i), e.Content)
		}
	}
}

func TestLocalStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(6)

	require.NoError(t, store.Append(ctx, 1, RoleUser, "hello"))
	require.NoError(t, store.Clear(ctx, 1))

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLocalStoreIsolatesChats(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(6)

	require.NoError(t, store.Append(ctx, 1, RoleUser, "one"))
	require.NoError(t, store.Append(ctx, 2, RoleUser, "two"))
	require.NoError(t, store.Clear(ctx, 1))

	history, err := store.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "two", history[0].Content)
}

func TestLocalStoreConcurrentAppendsLoseNothing(t *testing.T) {
	ctx := context.Background()
	const n = 50
	store := NewLocalStore(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, store.Append(ctx, 9, RoleUser, fmt.Sprintf("msg-%d", i)))
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, 9)
	require.NoError(t, err)
	require.Len(t, history, n)

	seen := make(map[string]bool, n)
	for _, e := range history {
		seen[e.Content] = true
	}
	assert.Len(t, seen, n, "every concurrent append must survive")
}

func TestLocalStoreHistoryReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(6)

	require.NoError(t, store.Append(ctx, 1, RoleUser, "original"))

	history, err := store.History(ctx, 1)
	require.NoError(t, err)
	history[0].Content = "mutated"

	again, err := store.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}
