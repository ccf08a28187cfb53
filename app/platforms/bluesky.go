package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/xrpc"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
)

const blueskyTimelineLimit = 100

// gifvHosts are external-link hosts whose embeds render as looping
// animations rather than plain link previews.
var gifvHosts = []string{"giphy.com", "media.tenor.com"}

// Bluesky fetches the timelines of the configured accounts over XRPC.
// Sessions are created fresh for every fetch and never persisted;
// the app password lives only in the sources file.
type Bluesky struct {
	accounts   []sources.BlueskyAccount
	httpClient *http.Client
}

var _ SocialPlatform = (*Bluesky)(nil)

func NewBluesky(accounts []sources.BlueskyAccount, httpClient *http.Client) *Bluesky {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bluesky{accounts: accounts, httpClient: httpClient}
}

func (b *Bluesky) PlatformID() feed.Platform {
	return feed.PlatformBluesky
}

func (b *Bluesky) FetchFeed(ctx context.Context) ([]feed.Item, error) {
	items := []feed.Item{}
	for _, account := range b.accounts {
		accountItems, err := b.fetchAccount(ctx, account)
		if err != nil {
			slog.Error("Failed to fetch Bluesky timeline", "account", account.Username, "error", err)
			continue
		}
		items = append(items, accountItems...)
	}
	return items, nil
}

func (b *Bluesky) fetchAccount(ctx context.Context, account sources.BlueskyAccount) ([]feed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	client := &xrpc.Client{Host: account.Server, Client: b.httpClient}

	session, err := createSession(ctx, client, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", account.Username, err)
	}
	client.Auth = session

	follows, err := fetchFollows(ctx, client, session.Did)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch follows of %s: %w", account.Username, err)
	}

	var timeline timelineResponse
	err = client.Do(ctx, xrpc.Query, "", "app.bsky.feed.getTimeline",
		map[string]interface{}{"limit": blueskyTimelineLimit}, nil, &timeline)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeline of %s: %w", account.Username, err)
	}

	items := []feed.Item{}
	for _, post := range timeline.Feed {
		if skipReply(post, follows) {
			continue
		}
		items = append(items, timelinePostToItem(post))
	}
	return items, nil
}

func createSession(ctx context.Context, client *xrpc.Client, account sources.BlueskyAccount) (*xrpc.AuthInfo, error) {
	var session xrpc.AuthInfo
	err := client.Do(ctx, xrpc.Procedure, "application/json", "com.atproto.server.createSession",
		nil, map[string]interface{}{
			"identifier": account.Username,
			"password":   account.Password,
		}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func fetchFollows(ctx context.Context, client *xrpc.Client, did string) (map[string]bool, error) {
	follows := map[string]bool{}
	cursor := ""
	for {
		params := map[string]interface{}{"actor": did}
		if cursor != "" {
			params["cursor"] = cursor
		}

		var page followsResponse
		if err := client.Do(ctx, xrpc.Query, "", "app.bsky.graph.getFollows", params, nil, &page); err != nil {
			return nil, err
		}
		for _, profile := range page.Follows {
			follows[profile.Did] = true
		}
		if page.Cursor == "" {
			return follows, nil
		}
		cursor = page.Cursor
	}
}

// skipReply drops replies whose parent author is not followed by the
// viewing account, and replies whose parent is deleted or blocked.
func skipReply(post feedViewPost, follows map[string]bool) bool {
	if post.Reply == nil || post.Reply.Parent == nil {
		return false
	}
	parent := post.Reply.Parent
	switch parent.Type {
	case "app.bsky.feed.defs#notFoundPost", "app.bsky.feed.defs#blockedPost":
		return true
	}
	return parent.Author != nil && !follows[parent.Author.Did]
}

func timelinePostToItem(post feedViewPost) feed.Item {
	var record postRecord
	if err := json.Unmarshal(post.Post.Record, &record); err != nil {
		slog.Warn("Failed to decode post record", "uri", post.Post.URI, "error", err)
	}

	text := mentionPrefix(post.Reply) + expandFacets(record.Text, record.Facets)
	if external := post.Post.Embed.externalLink(); external != "" && !post.Post.Embed.isGifv() {
		// Only add the link when the author did not put it in the body.
		if !strings.Contains(text, external) {
			text += "\n\n" + external
		}
	}

	published, _ := time.Parse(time.RFC3339, record.CreatedAt)

	item := feed.Item{
		Text:             text,
		Author:           "@" + post.Post.Author.Handle,
		AuthorImageURL:   post.Post.Author.Avatar,
		ID:               post.Post.Cid,
		Published:        published,
		Link:             bskyAppURL(post.Post.Author.Handle, post.Post.URI),
		Platform:         feed.PlatformBluesky,
		QuotedPost:       post.Post.Embed.quotedItem(),
		MediaAttachments: dedupeByPreview(post.Post.Embed.mediaAttachments()),
	}

	if post.Reason != nil && post.Reason.Type == "app.bsky.feed.defs#reasonRepost" && post.Reason.By != nil {
		timeOfRepost, _ := time.Parse(time.RFC3339, post.Reason.IndexedAt)
		item.RepostMeta = &feed.RepostMeta{
			RepostingAuthor:         "@" + post.Reason.By.Handle,
			RepostingAuthorImageURL: post.Reason.By.Avatar,
			TimeOfRepost:            timeOfRepost,
		}
	}
	return item
}

func mentionPrefix(reply *replyRef) string {
	if reply == nil || reply.Parent == nil {
		return ""
	}
	parent := reply.Parent
	switch parent.Type {
	case "app.bsky.feed.defs#blockedPost":
		if parent.Author != nil {
			return "@" + parent.Author.Did + " "
		}
		return ""
	case "app.bsky.feed.defs#notFoundPost":
		return "@[Deleted Post] "
	default:
		if parent.Author != nil {
			return "@" + parent.Author.Handle + " "
		}
		return ""
	}
}

// expandFacets replaces shortened link spans in the text with their
// full target URIs. Facet indices are byte offsets into the UTF-8
// text, so the splicing works on bytes; processing runs from the
// highest offset down so earlier offsets stay valid.
func expandFacets(text string, facets []facet) string {
	if len(facets) == 0 {
		return text
	}

	sorted := make([]facet, len(facets))
	copy(sorted, facets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index.ByteStart > sorted[j].Index.ByteStart
	})

	data := []byte(text)
	for _, f := range sorted {
		start, end := f.Index.ByteStart, f.Index.ByteEnd
		if start < 0 || end > len(data) || start > end {
			continue
		}
		span := data[start:end]
		for _, feature := range f.Features {
			// Mentions and tags keep their display text.
			if feature.Type == "app.bsky.richtext.facet#link" && feature.URI != "" {
				span = []byte(feature.URI)
			}
		}
		spliced := make([]byte, 0, len(data)-(end-start)+len(span))
		spliced = append(spliced, data[:start]...)
		spliced = append(spliced, span...)
		spliced = append(spliced, data[end:]...)
		data = spliced
	}
	return string(data)
}

// bskyAppURL converts an at:// URI into the public web permalink,
// e.g. at://did:plc:abc/app.bsky.feed.post/3law7ewf4ak2y becomes
// https://bsky.app/profile/<handle>/post/3law7ewf4ak2y.
func bskyAppURL(handle, atURI string) string {
	postID := atURI
	if idx := strings.LastIndex(atURI, "/"); idx >= 0 {
		postID = atURI[idx+1:]
	}
	return "https://bsky.app/profile/" + handle + "/post/" + postID
}

func dedupeByPreview(attachments []feed.MediaAttachment) []feed.MediaAttachment {
	// The timeline sometimes carries the same image twice.
	var deduped []feed.MediaAttachment
	seen := map[string]bool{}
	for _, attachment := range attachments {
		if seen[attachment.PreviewImageURL] {
			continue
		}
		seen[attachment.PreviewImageURL] = true
		deduped = append(deduped, attachment)
	}
	return deduped
}

func isGifvURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, host := range gifvHosts {
		if strings.HasSuffix(parsed.Host, host) {
			return true
		}
	}
	return false
}

// Wire DTOs for the XRPC responses. Post records arrive as raw JSON
// because their schema is open-ended.

type timelineResponse struct {
	Feed []feedViewPost `json:"feed"`
}

type feedViewPost struct {
	Post   postView      `json:"post"`
	Reply  *replyRef     `json:"reply,omitempty"`
	Reason *repostReason `json:"reason,omitempty"`
}

type postView struct {
	URI    string          `json:"uri"`
	Cid    string          `json:"cid"`
	Author actorProfile    `json:"author"`
	Record json.RawMessage `json:"record"`
	Embed  *embedView      `json:"embed,omitempty"`
}

type actorProfile struct {
	Did    string `json:"did"`
	Handle string `json:"handle"`
	Avatar string `json:"avatar,omitempty"`
}

type postRecord struct {
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
	Facets    []facet `json:"facets,omitempty"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
}

type replyRef struct {
	Parent *replyParent `json:"parent,omitempty"`
}

type replyParent struct {
	Type   string        `json:"$type"`
	Author *actorProfile `json:"author,omitempty"`
}

type repostReason struct {
	Type      string        `json:"$type"`
	By        *actorProfile `json:"by,omitempty"`
	IndexedAt string        `json:"indexedAt"`
}

type followsResponse struct {
	Follows []actorProfile `json:"follows"`
	Cursor  string         `json:"cursor,omitempty"`
}

// embedView covers every embed union variant the adapter cares about:
// images, external links, videos, quoted records and records with
// media.
type embedView struct {
	Type      string          `json:"$type"`
	Images    []imageView     `json:"images,omitempty"`
	External  *externalView   `json:"external,omitempty"`
	Thumbnail string          `json:"thumbnail,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	Media     *embedView      `json:"media,omitempty"`
}

type imageView struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
}

type externalView struct {
	URI   string `json:"uri"`
	Thumb string `json:"thumb,omitempty"`
}

// viewRecord is the quoted post inside a record embed.
type viewRecord struct {
	URI    string          `json:"uri"`
	Cid    string          `json:"cid"`
	Author actorProfile    `json:"author"`
	Value  json.RawMessage `json:"value"`
	Embeds []embedView     `json:"embeds,omitempty"`
}

func (e *embedView) isGifv() bool {
	if e == nil || e.External == nil {
		return false
	}
	return isGifvURL(e.External.URI)
}

func (e *embedView) externalLink() string {
	if e == nil || e.External == nil {
		return ""
	}
	return e.External.URI
}

// quotedItem resolves one level of record embedding into a feed item.
// Deeper nesting is dropped.
func (e *embedView) quotedItem() *feed.Item {
	if e == nil || len(e.Record) == 0 {
		return nil
	}

	// record embeds wrap the view record in another "record" object;
	// recordWithMedia embeds wrap it one level deeper.
	var wrapper struct {
		Record json.RawMessage `json:"record"`
	}
	raw := e.Record
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Record) > 0 {
		raw = wrapper.Record
	}

	var record viewRecord
	if err := json.Unmarshal(raw, &record); err != nil || record.URI == "" {
		return nil
	}

	var value postRecord
	if err := json.Unmarshal(record.Value, &value); err != nil {
		return nil
	}

	published, _ := time.Parse(time.RFC3339, value.CreatedAt)
	var media []feed.MediaAttachment
	for _, embed := range record.Embeds {
		media = append(media, embed.mediaAttachments()...)
	}

	return &feed.Item{
		Text:             expandFacets(value.Text, value.Facets),
		Author:           "@" + record.Author.Handle,
		AuthorImageURL:   record.Author.Avatar,
		ID:               record.Cid,
		Published:        published,
		Link:             bskyAppURL(record.Author.Handle, record.URI),
		Platform:         feed.PlatformBluesky,
		MediaAttachments: dedupeByPreview(media),
	}
}

func (e *embedView) mediaAttachments() []feed.MediaAttachment {
	if e == nil {
		return nil
	}

	// recordWithMedia carries its attachments on the media side.
	if e.Media != nil {
		return e.Media.mediaAttachments()
	}

	var media []feed.MediaAttachment
	switch {
	case len(e.Images) > 0:
		for _, image := range e.Images {
			media = append(media, feed.MediaAttachment{
				Type:            feed.MediaTypeImage,
				PreviewImageURL: image.Thumb,
				FullURL:         image.Fullsize,
			})
		}
	case e.External != nil:
		if e.isGifv() && e.External.Thumb != "" {
			media = append(media, feed.MediaAttachment{
				Type:            feed.MediaTypeGifv,
				PreviewImageURL: e.External.Thumb,
				FullURL:         e.External.URI,
			})
		}
	case e.Thumbnail != "":
		media = append(media, feed.MediaAttachment{
			Type:            feed.MediaTypeVideo,
			PreviewImageURL: e.Thumbnail,
			FullURL:         e.Thumbnail,
		})
	}
	return media
}
