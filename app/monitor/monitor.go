// Package monitor polls every platform adapter, retains a rolling
// window of items and serves the merged chronological feed.
package monitor

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/platforms"
)

const (
	// retentionHorizon is how long an item stays in the merged feed
	// after publication, even when the platform stops returning it.
	retentionHorizon = 48 * time.Hour

	minFetchInterval = 1 * time.Minute
	maxFetchInterval = 5 * time.Minute
)

// Monitor owns the retained item sets, one per platform. Fetches for
// different platforms run concurrently and apply their results
// independently, so a slow or failing platform never blocks or
// degrades the others.
type Monitor struct {
	adapters []platforms.SocialPlatform

	mu       sync.Mutex
	retained map[feed.Platform]map[string]feed.Item

	fetchInterval func() time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Monitor)

// WithFetchInterval replaces the randomized polling interval, for
// tests that need a fast deterministic loop.
func WithFetchInterval(interval func() time.Duration) Option {
	return func(m *Monitor) { m.fetchInterval = interval }
}

func New(adapters []platforms.SocialPlatform, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		adapters: adapters,
		retained: map[feed.Platform]map[string]feed.Item{},
		fetchInterval: func() time.Duration {
			spread := maxFetchInterval - minFetchInterval
			return minFetchInterval + time.Duration(rand.Int63n(int64(spread)))
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs one update cycle immediately, then keeps polling on a
// randomized interval until Stop is called.
func (m *Monitor) Start() {
	slog.Info("Starting feed monitor", "platforms", len(m.adapters))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.RunUpdateCycle(m.ctx)
		for {
			timer := time.NewTimer(m.fetchInterval())
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				m.RunUpdateCycle(m.ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	slog.Info("Stopping feed monitor")
	m.cancel()
	m.wg.Wait()
}

// RunUpdateCycle fetches every platform concurrently. Each platform's
// result is applied as soon as it resolves; a failing platform only
// logs, its previously retained items stay in the feed.
func (m *Monitor) RunUpdateCycle(ctx context.Context) {
	var cycle sync.WaitGroup
	for _, adapter := range m.adapters {
		cycle.Add(1)
		go func(adapter platforms.SocialPlatform) {
			defer cycle.Done()
			m.fetchAndApply(ctx, adapter)
		}(adapter)
	}
	cycle.Wait()
}

// RequestImmediateUpdate re-fetches just the named platform, used
// after a credential change to make its items appear without waiting
// for the next polling cycle.
func (m *Monitor) RequestImmediateUpdate(ctx context.Context, platform feed.Platform) {
	for _, adapter := range m.adapters {
		if adapter.PlatformID() == platform {
			m.fetchAndApply(ctx, adapter)
			return
		}
	}
	slog.Warn("No adapter registered for platform", "platform", platform)
}

func (m *Monitor) fetchAndApply(ctx context.Context, adapter platforms.SocialPlatform) {
	platform := adapter.PlatformID()

	items, err := adapter.FetchFeed(ctx)
	if err != nil {
		slog.Error("Feed fetch failed, keeping retained items", "platform", platform, "error", err)
		return
	}

	added := m.applyFetchResult(platform, items)
	slog.Debug("Applied fetch result", "platform", platform, "fetched", len(items), "retained", added)
}

// applyFetchResult merges the fetched items into the platform's
// retained set (replacing items with equal IDs) and evicts everything
// older than the retention horizon. Returns the retained count.
func (m *Monitor) applyFetchResult(platform feed.Platform, items []feed.Item) int {
	cutoff := time.Now().Add(-retentionHorizon)

	m.mu.Lock()
	defer m.mu.Unlock()

	retained := m.retained[platform]
	if retained == nil {
		retained = map[string]feed.Item{}
		m.retained[platform] = retained
	}
	for _, item := range items {
		retained[item.ID] = item
	}
	for id, item := range retained {
		if item.Published.Before(cutoff) {
			delete(retained, id)
		}
	}
	return len(retained)
}

// GetMergedFeed returns every retained item across all platforms,
// newest first. The sort is stable over a deterministic per-platform
// order, so repeated calls with the same retained sets return the
// same slice. With corsRestricted set, media and avatar URLs are
// rewritten to the same-origin proxy.
func (m *Monitor) GetMergedFeed(corsRestricted bool) []feed.Item {
	merged := m.collectRetained()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})

	if corsRestricted {
		for i := range merged {
			merged[i] = merged[i].WithProxiedURLs()
		}
	}
	return merged
}

func (m *Monitor) collectRetained() []feed.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := []feed.Item{}
	for _, adapter := range m.adapters {
		retained := m.retained[adapter.PlatformID()]

		platformItems := make([]feed.Item, 0, len(retained))
		for _, item := range retained {
			platformItems = append(platformItems, item)
		}
		// Map iteration order is random; fix it before the stable
		// merge sort so equal timestamps tie-break consistently.
		sort.Slice(platformItems, func(i, j int) bool {
			return platformItems[i].ID < platformItems[j].ID
		})
		merged = append(merged, platformItems...)
	}
	return merged
}

// RetainedCounts reports how many items each platform currently
// retains, for the health endpoint.
func (m *Monitor) RetainedCounts() map[feed.Platform]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[feed.Platform]int, len(m.retained))
	for platform, retained := range m.retained {
		counts[platform] = len(retained)
	}
	return counts
}
