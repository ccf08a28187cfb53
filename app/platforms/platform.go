// Package platforms contains one adapter per social network. Each
// adapter turns a platform-specific fetch into the normalized item
// model; the monitor treats them uniformly and in isolation.
package platforms

import (
	"context"
	"time"

	"github.com/lysyi3m/social-comb/app/feed"
)

// fetchTimeout bounds one FetchFeed call against a remote platform.
const fetchTimeout = 30 * time.Second

// SocialPlatform is the adapter contract. FetchFeed returns the
// platform's current window of items; an error means this cycle's
// result for the platform is discarded, never that previously fetched
// items are dropped.
type SocialPlatform interface {
	PlatformID() feed.Platform
	FetchFeed(ctx context.Context) ([]feed.Item, error)
}
