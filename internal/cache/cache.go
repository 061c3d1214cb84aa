package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"LodgingPulse/internal/model"
)

// Defaults for the forecast memoization cache. Entries within TTL are never
// evicted for size: repeat-request locality within a session is the
// optimization target, not memory bound enforcement.
const (
	DefaultTTL        = 300 * time.Second
	DefaultMaxEntries = 128
)

// Key canonicalizes every input that affects a forecast result. Scenario ids
// are sorted and coordinates rounded before hashing so logically identical
// requests share one entry regardless of argument order or float noise.
type Key struct {
	Region      string   `json:"region"`
	Market      string   `json:"market"`
	BaseYear    int      `json:"base_year"`
	BaseMonth   int      `json:"base_month"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Horizon     int      `json:"horizon"`
	ScenarioIDs []string `json:"scenario_ids"`
	CustomShock float64  `json:"custom_shock"`
}

// Canonical returns the content-addressed cache key.
func (k Key) Canonical() string {
	ids := append([]string{}, k.ScenarioIDs...)
	sort.Strings(ids)
	k.ScenarioIDs = ids
	k.Lat = roundCoord(k.Lat)
	k.Lng = roundCoord(k.Lng)
	data, err := json.Marshal(k)
	if err != nil {
		// Key is a flat struct of scalars; Marshal cannot fail in practice.
		data = []byte(fmt.Sprintf("%+v", k))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func roundCoord(v float64) float64 {
	return math.Round(v*10000) / 10000
}

type entry struct {
	payload   *model.ForecastPayload
	expiresAt time.Time
}

// ForecastCache is a content-addressed, time-bounded memoization over full
// forecast inputs. The lock covers only the check/insert critical sections;
// computation runs unlocked, so a rare race computes twice rather than
// serializing expensive forecasts.
type ForecastCache struct {
	ttl        time.Duration
	maxEntries int
	clock      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// New creates a ForecastCache. Non-positive ttl or maxEntries use defaults;
// a nil clock uses time.Now.
func New(ttl time.Duration, maxEntries int, clock func() time.Time) *ForecastCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if clock == nil {
		clock = time.Now
	}
	return &ForecastCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[string]entry),
	}
}

// GetOrCompute returns the cached payload for the key when its TTL has not
// elapsed, otherwise invokes compute and stores the result. A lookup past TTL
// is a miss: the entry is recomputed and replaced.
func (c *ForecastCache) GetOrCompute(key Key, compute func() (*model.ForecastPayload, error)) (*model.ForecastPayload, error) {
	canonical := key.Canonical()

	c.mu.RLock()
	e, ok := c.entries[canonical]
	c.mu.RUnlock()
	if ok && c.clock().Before(e.expiresAt) {
		return e.payload, nil
	}

	payload, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[canonical] = entry{payload: payload, expiresAt: c.clock().Add(c.ttl)}
	if len(c.entries) > c.maxEntries {
		c.purgeExpiredLocked()
	}
	c.mu.Unlock()
	return payload, nil
}

// PurgeExpired drops every entry whose TTL has elapsed and returns the count.
func (c *ForecastCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked()
}

// Len returns the current entry count.
func (c *ForecastCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ForecastCache) purgeExpiredLocked() int {
	now := c.clock()
	purged := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			purged++
		}
	}
	return purged
}
