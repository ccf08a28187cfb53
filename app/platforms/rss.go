package platforms

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
)

// RSS pulls classic syndication feeds into the timeline alongside the
// social platforms.
type RSS struct {
	feeds      []sources.RSSFeed
	httpClient *http.Client
	userAgent  string
}

var _ SocialPlatform = (*RSS)(nil)

func NewRSS(feeds []sources.RSSFeed, httpClient *http.Client, userAgent string) *RSS {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RSS{feeds: feeds, httpClient: httpClient, userAgent: userAgent}
}

func (r *RSS) PlatformID() feed.Platform {
	return feed.PlatformRSS
}

func (r *RSS) FetchFeed(ctx context.Context) ([]feed.Item, error) {
	items := []feed.Item{}
	for _, source := range r.feeds {
		feedItems, err := r.fetchFeed(ctx, source.URL)
		if err != nil {
			slog.Error("Failed to fetch RSS feed", "url", source.URL, "error", err)
			continue
		}
		items = append(items, feedItems...)
	}
	return items, nil
}

func (r *RSS) fetchFeed(ctx context.Context, feedURL string) ([]feed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching feed", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := []feed.Item{}
	for _, entry := range parsed.Items {
		// Entries without a timestamp cannot participate in the
		// merged chronological feed.
		if entry.PublishedParsed == nil {
			continue
		}

		item := feed.Item{
			Text:      entryText(entry),
			Author:    parsed.Title,
			ID:        cmp.Or(entry.GUID, entry.Link),
			Published: entry.PublishedParsed.UTC(),
			Link:      entry.Link,
			Platform:  feed.PlatformRSS,
		}
		if parsed.Image != nil {
			item.AuthorImageURL = parsed.Image.URL
		}
		for _, enclosure := range entry.Enclosures {
			if strings.HasPrefix(enclosure.Type, "image/") {
				item.MediaAttachments = append(item.MediaAttachments, feed.MediaAttachment{
					Type:            feed.MediaTypeImage,
					PreviewImageURL: enclosure.URL,
					FullURL:         enclosure.URL,
				})
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func entryText(entry *gofeed.Item) string {
	if entry.Description == "" {
		return entry.Title
	}
	return entry.Title + "\n\n" + entry.Description
}
