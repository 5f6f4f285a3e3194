package cache

import "go.uber.org/zap"

// Hooks receives diagnostic cache events. Implementations must be cheap and
// must not call back into the Store.
type Hooks interface {
	Hit(key string)
	Miss(key string)
	Stored(key string)
	Expired(key string)
	Evicted(key string)
	Invalidated(pattern string, removed int)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) Hit(string)              {}
func (NopHooks) Miss(string)             {}
func (NopHooks) Stored(string)           {}
func (NopHooks) Expired(string)          {}
func (NopHooks) Evicted(string)          {}
func (NopHooks) Invalidated(string, int) {}

// LogHooks writes cache events to a zap logger at debug level.
type LogHooks struct {
	Log *zap.Logger
}

func (h LogHooks) Hit(key string)     { h.Log.Debug("cache hit", zap.String("key", key)) }
func (h LogHooks) Miss(key string)    { h.Log.Debug("cache miss", zap.String("key", key)) }
func (h LogHooks) Stored(key string)  { h.Log.Debug("cache set", zap.String("key", key)) }
func (h LogHooks) Expired(key string) { h.Log.Debug("cache expired", zap.String("key", key)) }
func (h LogHooks) Evicted(key string) { h.Log.Debug("cache evicted", zap.String("key", key)) }
func (h LogHooks) Invalidated(pattern string, removed int) {
	h.Log.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("removed", removed))
}

// MultiHooks fans every event out to each of hs in order.
func MultiHooks(hs ...Hooks) Hooks { return multiHooks(hs) }

type multiHooks []Hooks

func (m multiHooks) Hit(key string) {
	for _, h := range m {
		h.Hit(key)
	}
}

func (m multiHooks) Miss(key string) {
	for _, h := range m {
		h.Miss(key)
	}
}

func (m multiHooks) Stored(key string) {
	for _, h := range m {
		h.Stored(key)
	}
}

func (m multiHooks) Expired(key string) {
	for _, h := range m {
		h.Expired(key)
	}
}

func (m multiHooks) Evicted(key string) {
	for _, h := range m {
		h.Evicted(key)
	}
}

func (m multiHooks) Invalidated(pattern string, removed int) {
	for _, h := range m {
		h.Invalidated(pattern, removed)
	}
}
