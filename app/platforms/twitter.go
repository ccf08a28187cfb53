package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
)

// Twitter shells out to an external scraper script per configured
// list. The script receives the list ID and the data directory (for
// its own session files) and prints a JSON array of items on stdout.
type Twitter struct {
	scriptPath string
	dataDir    string
	lists      []sources.TwitterList
}

var _ SocialPlatform = (*Twitter)(nil)

func NewTwitter(scriptPath, dataDir string, lists []sources.TwitterList) *Twitter {
	return &Twitter{scriptPath: scriptPath, dataDir: dataDir, lists: lists}
}

func (t *Twitter) PlatformID() feed.Platform {
	return feed.PlatformTwitter
}

// FetchFeed runs the scraper once per list. A failing list is logged
// and skipped so one broken list does not take down the others.
func (t *Twitter) FetchFeed(ctx context.Context) ([]feed.Item, error) {
	items := []feed.Item{}
	for _, list := range t.lists {
		listItems, err := t.fetchList(ctx, list.ID)
		if err != nil {
			slog.Error("Failed to fetch Twitter list", "list", list.ID, "error", err)
			continue
		}
		items = append(items, listItems...)
	}
	return items, nil
}

func (t *Twitter) fetchList(ctx context.Context, listID string) ([]feed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.scriptPath, listID, t.dataDir)
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("scraper script failed for list %s: %w", listID, err)
	}

	var items []feed.Item
	if err := json.Unmarshal(output, &items); err != nil {
		return nil, fmt.Errorf("scraper script produced invalid JSON for list %s: %w", listID, err)
	}

	for i := range items {
		items[i].Platform = feed.PlatformTwitter
	}
	return items, nil
}
