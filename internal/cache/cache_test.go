package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingHooks) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingHooks) Hit(key string)     { r.add("hit:" + key) }
func (r *recordingHooks) Miss(key string)    { r.add("miss:" + key) }
func (r *recordingHooks) Stored(key string)  { r.add("set:" + key) }
func (r *recordingHooks) Expired(key string) { r.add("expired:" + key) }
func (r *recordingHooks) Evicted(key string) { r.add("evicted:" + key) }
func (r *recordingHooks) Invalidated(pattern string, n int) {
	r.add(fmt.Sprintf("invalidated:%s:%d", pattern, n))
}

func (r *recordingHooks) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.MaxSize == 0 {
		opts.MaxSize = 100
	}
	if opts.DefaultTTL == 0 {
		opts.DefaultTTL = time.Hour
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mustKey(t *testing.T, endpoint string, params map[string]any, endUser string) string {
	t.Helper()
	k, err := GenerateKey(endpoint, params, endUser)
	require.NoError(t, err)
	return k
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(Options{MaxSize: 0})
	assert.Error(t, err)
}

func TestSetThenGet(t *testing.T) {
	hooks := &recordingHooks{}
	s := newStore(t, Options{Hooks: hooks})

	require.True(t, s.Set("k", []byte(`{"a":1}`), 0))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"set:k", "hit:k", "miss:missing"}, hooks.snapshot())
}

func TestGetReturnsCopy(t *testing.T) {
	s := newStore(t, Options{})
	require.True(t, s.Set("k", []byte("abc"), 0))

	got, err := s.Get("k")
	require.NoError(t, err)
	got[0] = 'x'

	again, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestExpiredEntryIsNotServed(t *testing.T) {
	hooks := &recordingHooks{}
	s := newStore(t, Options{Hooks: hooks})

	require.True(t, s.Set("short", []byte("v"), 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, err := s.Get("short")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Contains(t, hooks.snapshot(), "expired:short")
	assert.Equal(t, 0, s.Len())
}

func TestOverwriteReplacesValue(t *testing.T) {
	s := newStore(t, Options{})
	require.True(t, s.Set("k", []byte("one"), 0))
	require.True(t, s.Set("k", []byte("two"), 0))

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
	assert.Equal(t, 1, s.Len())
}

func TestInvalidatePattern(t *testing.T) {
	s := newStore(t, Options{})
	a1 := mustKey(t, "/quickbooks-desktop/accounts", nil, "end_usr_a")
	a2 := mustKey(t, "/quickbooks-desktop/bills", map[string]any{"limit": 50}, "end_usr_a")
	b1 := mustKey(t, "/quickbooks-desktop/accounts", nil, "end_usr_b")
	for _, k := range []string{a1, a2, b1} {
		require.True(t, s.Set(k, []byte("x"), 0))
	}

	assert.Equal(t, 1, s.InvalidatePattern("/bills"))
	_, err := s.Get(a2)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(a1)
	assert.NoError(t, err)
	_, err = s.Get(b1)
	assert.NoError(t, err)

	assert.Equal(t, 0, s.InvalidatePattern("no-such-fragment"))
}

func TestInvalidateEndUser(t *testing.T) {
	hooks := &recordingHooks{}
	s := newStore(t, Options{Hooks: hooks})
	a1 := mustKey(t, "/quickbooks-desktop/accounts", nil, "end_usr_a")
	a2 := mustKey(t, "/quickbooks-desktop/bills", nil, "end_usr_a")
	b1 := mustKey(t, "/quickbooks-desktop/accounts", nil, "end_usr_b")
	for _, k := range []string{a1, a2, b1} {
		require.True(t, s.Set(k, []byte("x"), 0))
	}

	assert.Equal(t, 2, s.InvalidateEndUser("end_usr_a"))
	for _, k := range []string{a1, a2} {
		_, err := s.Get(k)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	_, err := s.Get(b1)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Contains(t, hooks.snapshot(), "invalidated:end_usr_a|:2")

	assert.Equal(t, 0, s.InvalidateEndUser("end_usr_a"))
	assert.Equal(t, 0, s.InvalidateEndUser(""))
}

func TestDeleteAndClear(t *testing.T) {
	s := newStore(t, Options{})
	require.True(t, s.Set("a", []byte("1"), 0))
	require.True(t, s.Set("b", []byte("2"), 0))

	s.Delete("a")
	_, err := s.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())

	s.Clear()
	_, err = s.Get("b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestCapacityIsBounded(t *testing.T) {
	s := newStore(t, Options{MaxSize: 3})
	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d", i)
		if admitted := s.Set(keys[i], []byte("v"), 0); !admitted {
			// A rejected newcomer is not readable and leaves the index untouched.
			_, err := s.Get(keys[i])
			assert.ErrorIs(t, err, ErrNotFound, keys[i])
		} else if i == 0 {
			_, err := s.Get(keys[i])
			assert.NoError(t, err)
		}
		assert.LessOrEqual(t, s.Len(), 3)
	}

	readable := 0
	for _, k := range keys {
		if _, err := s.Get(k); err == nil {
			readable++
		}
	}
	assert.Equal(t, s.Len(), readable, "index and cache must agree after evictions")
}

func TestConcurrentAccess(t *testing.T) {
	s := newStore(t, Options{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k, _ := GenerateKey("/e", map[string]any{"i": i % 10}, fmt.Sprintf("u%d", g%2))
				s.Set(k, []byte("v"), 0)
				_, _ = s.Get(k)
				if i%25 == 0 {
					s.InvalidateEndUser(fmt.Sprintf("u%d", g%2))
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 50)
}
