package feed

import (
	"time"
)

// Platform identifies the social network a feed item originated from.
type Platform string

const (
	PlatformTwitter  Platform = "Twitter"
	PlatformMastodon Platform = "Mastodon"
	PlatformBluesky  Platform = "Bluesky"
	PlatformRSS      Platform = "RSS"
)

type MediaType string

const (
	MediaTypeImage MediaType = "Image"
	MediaTypeVideo MediaType = "Video"
	MediaTypeGifv  MediaType = "Gifv"
)

type MediaAttachment struct {
	Type            MediaType `json:"type"`
	PreviewImageURL string    `json:"previewImageUrl"`
	FullURL         string    `json:"fullUrl"`
}

// RepostMeta marks an item that appears in a feed because somebody
// reposted it, as opposed to the item's true author posting it.
type RepostMeta struct {
	RepostingAuthor         string    `json:"repostingAuthor"`
	RepostingAuthorImageURL string    `json:"repostingAuthorImageUrl,omitempty"`
	TimeOfRepost            time.Time `json:"timeOfRepost"`
}

// Item is one normalized post. Identity is the (ID, Platform) pair:
// IDs are only unique within a single platform. Items are immutable
// once built by a platform adapter; a re-fetch produces a new value
// that replaces the old one under equal identity.
type Item struct {
	// Text may contain source-specific markup, e.g. HTML for Mastodon.
	Text           string    `json:"text"`
	Author         string    `json:"author"`
	AuthorImageURL string    `json:"authorImageUrl,omitempty"`
	ID             string    `json:"id"`
	Published      time.Time `json:"published"`
	Link           string    `json:"link,omitempty"`
	Platform       Platform  `json:"platform"`
	// QuotedPost holds at most one level of embedding (a quoted or
	// reblogged post). Adapters must not build deeper chains.
	QuotedPost       *Item             `json:"quotedPost,omitempty"`
	MediaAttachments []MediaAttachment `json:"mediaAttachments,omitempty"`
	RepostMeta       *RepostMeta       `json:"repostMeta,omitempty"`
}
