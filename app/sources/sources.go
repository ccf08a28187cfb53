// Package sources loads the YAML file declaring which accounts, lists
// and feeds the service aggregates.
package sources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type TwitterList struct {
	ID string `yaml:"id"`
}

type BlueskyAccount struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RSSFeed struct {
	URL string `yaml:"url"`
}

// Sources describes everything the service follows. Mastodon
// followings name users whose home timelines get aggregated once the
// user completes the authorization flow; the other platforms carry
// their credentials (or none) directly in this file.
type Sources struct {
	MastodonFollowings []MastodonUser   `yaml:"mastodon_followings"`
	TwitterLists       []TwitterList    `yaml:"twitter_lists"`
	BlueskyFollowings  []BlueskyAccount `yaml:"bluesky_followings"`
	RSSFeeds           []RSSFeed        `yaml:"rss_feeds"`
}

// MastodonUser identifies one account on one instance. Server carries
// the scheme, e.g. "https://mastodon.social".
type MastodonUser struct {
	Server   string `yaml:"server" json:"server"`
	Username string `yaml:"username" json:"username"`
}

func (u MastodonUser) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("mastodon user is missing a username")
	}
	if !strings.HasPrefix(u.Server, "http://") && !strings.HasPrefix(u.Server, "https://") {
		return fmt.Errorf("mastodon server %q must include an http:// or https:// scheme", u.Server)
	}
	return nil
}

// InstanceName strips the scheme, leaving the bare host used as a
// credential-store key, e.g. "mastodon.social".
func (u MastodonUser) InstanceName() string {
	_, host, found := strings.Cut(u.Server, "://")
	if !found {
		return u.Server
	}
	return host
}

// FullUsername returns the canonical "user@instance" form.
func (u MastodonUser) FullUsername() string {
	return u.Username + "@" + u.InstanceName()
}

// Load reads and validates the sources file. Validation is eager so a
// misconfigured entry fails startup instead of producing a silently
// empty feed.
func Load(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var sources Sources
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	for _, user := range sources.MastodonFollowings {
		if err := user.Validate(); err != nil {
			return nil, fmt.Errorf("invalid mastodon following: %w", err)
		}
	}
	for _, list := range sources.TwitterLists {
		if list.ID == "" {
			return nil, fmt.Errorf("twitter list is missing an id")
		}
	}
	for _, account := range sources.BlueskyFollowings {
		if account.Server == "" || account.Username == "" || account.Password == "" {
			return nil, fmt.Errorf("bluesky following %q is missing server, username or password", account.Username)
		}
	}
	for _, f := range sources.RSSFeeds {
		if !strings.HasPrefix(f.URL, "http://") && !strings.HasPrefix(f.URL, "https://") {
			return nil, fmt.Errorf("rss feed %q must be an absolute http(s) URL", f.URL)
		}
	}

	return &sources, nil
}
