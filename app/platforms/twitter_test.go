package platforms

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scraper.sh")
	if err := os.WriteFile(path, []byte(content), 0700); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestTwitterFetchFeedParsesScriptOutput(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
echo '[{"text":"hello from list '"$1"'","author":"@someone","id":"t1","published":"2026-08-29T12:00:00Z"}]'
`)

	twitter := NewTwitter(script, t.TempDir(), []sources.TwitterList{{ID: "123"}})
	items, err := twitter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Text != "hello from list 123" {
		t.Errorf("Expected list ID to be passed to the script, got %q", items[0].Text)
	}
	if items[0].Platform != feed.PlatformTwitter {
		t.Errorf("Expected platform to be forced to Twitter, got %q", items[0].Platform)
	}
}

func TestTwitterFetchFeedIsolatesFailingLists(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
if [ "$1" = "bad" ]; then
  echo 'not json'
else
  echo '[{"text":"ok","author":"@someone","id":"t1","published":"2026-08-29T12:00:00Z"}]'
fi
`)

	twitter := NewTwitter(script, t.TempDir(), []sources.TwitterList{{ID: "bad"}, {ID: "good"}})
	items, err := twitter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Expected no error from isolated list failure, got %v", err)
	}

	if len(items) != 1 || items[0].Text != "ok" {
		t.Errorf("Expected only the healthy list's items, got %+v", items)
	}
}

func TestTwitterFetchFeedHandlesScriptFailure(t *testing.T) {
	script := writeScript(t, `#!/bin/sh
exit 1
`)

	twitter := NewTwitter(script, t.TempDir(), []sources.TwitterList{{ID: "123"}})
	items, err := twitter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items from failing script, got %+v", items)
	}
}
