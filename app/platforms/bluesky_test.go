package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
)

func TestExpandFacetsReplacesLinkSpans(t *testing.T) {
	// "check example.com out" with the shortened span replaced by the
	// full URI.
	text := "check example.com out"
	facets := []facet{
		{
			Index: facetIndex{ByteStart: 6, ByteEnd: 17},
			Features: []facetFeature{
				{Type: "app.bsky.richtext.facet#link", URI: "https://example.com/article"},
			},
		},
	}

	expanded := expandFacets(text, facets)
	if expanded != "check https://example.com/article out" {
		t.Errorf("Unexpected expansion: %q", expanded)
	}
}

func TestExpandFacetsHandlesMultipleFacetsWithMultibyteText(t *testing.T) {
	// The ö is two bytes; facet offsets are byte offsets.
	text := "schön: a.co and b.co"
	facets := []facet{
		{
			Index:    facetIndex{ByteStart: 8, ByteEnd: 12},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: "https://a.example.com"}},
		},
		{
			Index:    facetIndex{ByteStart: 17, ByteEnd: 21},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: "https://b.example.com"}},
		},
	}

	expanded := expandFacets(text, facets)
	if expanded != "schön: https://a.example.com and https://b.example.com" {
		t.Errorf("Unexpected expansion: %q", expanded)
	}
}

func TestExpandFacetsLeavesMentionsAndTagsAlone(t *testing.T) {
	text := "hi @alice.bsky.social"
	facets := []facet{
		{
			Index:    facetIndex{ByteStart: 3, ByteEnd: 21},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#mention"}},
		},
	}

	if expanded := expandFacets(text, facets); expanded != text {
		t.Errorf("Expected mention to be untouched, got %q", expanded)
	}
}

func TestExpandFacetsIgnoresOutOfRangeOffsets(t *testing.T) {
	text := "short"
	facets := []facet{
		{
			Index:    facetIndex{ByteStart: 2, ByteEnd: 999},
			Features: []facetFeature{{Type: "app.bsky.richtext.facet#link", URI: "https://x.example.com"}},
		},
	}

	if expanded := expandFacets(text, facets); expanded != text {
		t.Errorf("Expected malformed facet to be skipped, got %q", expanded)
	}
}

func TestBskyAppURL(t *testing.T) {
	got := bskyAppURL("tomwarren.co.uk", "at://did:plc:fbtvg6jxtdroidfvq5z635xu/app.bsky.feed.post/3law7ewf4ak2y")
	want := "https://bsky.app/profile/tomwarren.co.uk/post/3law7ewf4ak2y"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestIsGifvURL(t *testing.T) {
	cases := map[string]bool{
		"https://media.giphy.com/media/abc/giphy.gif": true,
		"https://media.tenor.com/xyz/tenor.gif":       true,
		"https://example.com/image.gif":               false,
		"not a url at all ://":                        false,
	}
	for raw, want := range cases {
		if got := isGifvURL(raw); got != want {
			t.Errorf("isGifvURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestEmbedMediaAttachments(t *testing.T) {
	images := &embedView{
		Type: "app.bsky.embed.images#view",
		Images: []imageView{
			{Thumb: "https://cdn/thumb1.jpg", Fullsize: "https://cdn/full1.jpg"},
			{Thumb: "https://cdn/thumb1.jpg", Fullsize: "https://cdn/full1.jpg"},
		},
	}
	media := dedupeByPreview(images.mediaAttachments())
	if len(media) != 1 || media[0].Type != feed.MediaTypeImage {
		t.Errorf("Expected one deduplicated image, got %+v", media)
	}

	gifv := &embedView{
		Type:     "app.bsky.embed.external#view",
		External: &externalView{URI: "https://media.tenor.com/abc.gif", Thumb: "https://cdn/thumb.jpg"},
	}
	media = gifv.mediaAttachments()
	if len(media) != 1 || media[0].Type != feed.MediaTypeGifv {
		t.Errorf("Expected a gifv attachment, got %+v", media)
	}
	if media[0].FullURL != "https://media.tenor.com/abc.gif" {
		t.Errorf("Expected the external URI as full URL, got %q", media[0].FullURL)
	}

	plainExternal := &embedView{
		Type:     "app.bsky.embed.external#view",
		External: &externalView{URI: "https://example.com/article", Thumb: "https://cdn/thumb.jpg"},
	}
	if media := plainExternal.mediaAttachments(); len(media) != 0 {
		t.Errorf("Expected no attachment for a plain link preview, got %+v", media)
	}

	video := &embedView{Type: "app.bsky.embed.video#view", Thumbnail: "https://cdn/video-thumb.jpg"}
	media = video.mediaAttachments()
	if len(media) != 1 || media[0].Type != feed.MediaTypeVideo {
		t.Errorf("Expected a video attachment, got %+v", media)
	}
}

func fakeBlueskyServer(t *testing.T, timeline string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode session request: %v", err)
		}
		if body["identifier"] != "viewer.bsky.social" || body["password"] != "app-password" {
			t.Errorf("Unexpected session request: %v", body)
		}
		fmt.Fprint(w, `{"accessJwt":"access","refreshJwt":"refresh","handle":"viewer.bsky.social","did":"did:plc:viewer"}`)
	})
	mux.HandleFunc("GET /xrpc/app.bsky.graph.getFollows", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("actor"); got != "did:plc:viewer" {
			t.Errorf("Expected follows of the session DID, got %q", got)
		}
		if r.URL.Query().Get("cursor") == "" {
			fmt.Fprint(w, `{"follows":[{"did":"did:plc:followed","handle":"followed.bsky.social"}],"cursor":"page2"}`)
			return
		}
		fmt.Fprint(w, `{"follows":[{"did":"did:plc:friend","handle":"friend.bsky.social"}]}`)
	})
	mux.HandleFunc("GET /xrpc/app.bsky.feed.getTimeline", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("Expected limit=100, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access" {
			t.Errorf("Expected session bearer token, got %q", got)
		}
		fmt.Fprint(w, timeline)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestBlueskyFetchFiltersAndNormalizes(t *testing.T) {
	timeline := `{"feed":[
		{
			"post": {
				"uri": "at://did:plc:followed/app.bsky.feed.post/post1",
				"cid": "cid1",
				"author": {"did": "did:plc:followed", "handle": "followed.bsky.social", "avatar": "https://cdn/av1.jpg"},
				"record": {"text": "plain post", "createdAt": "2026-08-29T12:00:00Z"}
			}
		},
		{
			"post": {
				"uri": "at://did:plc:stranger/app.bsky.feed.post/post2",
				"cid": "cid2",
				"author": {"did": "did:plc:stranger", "handle": "stranger.bsky.social"},
				"record": {"text": "reply to stranger", "createdAt": "2026-08-29T12:01:00Z"}
			},
			"reply": {
				"parent": {"$type": "app.bsky.feed.defs#postView", "author": {"did": "did:plc:unknown", "handle": "unknown.bsky.social"}}
			}
		},
		{
			"post": {
				"uri": "at://did:plc:followed/app.bsky.feed.post/post3",
				"cid": "cid3",
				"author": {"did": "did:plc:followed", "handle": "followed.bsky.social"},
				"record": {"text": "reply to deleted", "createdAt": "2026-08-29T12:02:00Z"}
			},
			"reply": {
				"parent": {"$type": "app.bsky.feed.defs#notFoundPost"}
			}
		},
		{
			"post": {
				"uri": "at://did:plc:friend/app.bsky.feed.post/post4",
				"cid": "cid4",
				"author": {"did": "did:plc:friend", "handle": "friend.bsky.social"},
				"record": {"text": "reply to friend", "createdAt": "2026-08-29T12:03:00Z"}
			},
			"reply": {
				"parent": {"$type": "app.bsky.feed.defs#postView", "author": {"did": "did:plc:friend", "handle": "friend.bsky.social"}}
			}
		},
		{
			"post": {
				"uri": "at://did:plc:followed/app.bsky.feed.post/post5",
				"cid": "cid5",
				"author": {"did": "did:plc:followed", "handle": "followed.bsky.social"},
				"record": {"text": "reposted content", "createdAt": "2026-08-29T11:00:00Z"}
			},
			"reason": {
				"$type": "app.bsky.feed.defs#reasonRepost",
				"by": {"did": "did:plc:friend", "handle": "friend.bsky.social", "avatar": "https://cdn/friend.jpg"},
				"indexedAt": "2026-08-29T12:04:00Z"
			}
		}
	]}`

	server := fakeBlueskyServer(t, timeline)
	adapter := NewBluesky([]sources.BlueskyAccount{
		{Server: server.URL, Username: "viewer.bsky.social", Password: "app-password"},
	}, server.Client())

	items, err := adapter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}

	// post2 (reply to non-followed) and post3 (reply to deleted) are
	// filtered; post1, post4 and post5 remain.
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d: %+v", len(items), items)
	}

	if items[0].ID != "cid1" || items[0].Author != "@followed.bsky.social" {
		t.Errorf("Unexpected first item: %+v", items[0])
	}
	if want := "https://bsky.app/profile/followed.bsky.social/post/post1"; items[0].Link != want {
		t.Errorf("Expected permalink %q, got %q", want, items[0].Link)
	}

	if !strings.HasPrefix(items[1].Text, "@friend.bsky.social ") {
		t.Errorf("Expected reply mention prefix, got %q", items[1].Text)
	}

	repost := items[2]
	if repost.RepostMeta == nil || repost.RepostMeta.RepostingAuthor != "@friend.bsky.social" {
		t.Fatalf("Expected repost metadata, got %+v", repost.RepostMeta)
	}
	if got := repost.RepostMeta.TimeOfRepost.Format("2006-01-02T15:04:05Z"); got != "2026-08-29T12:04:00Z" {
		t.Errorf("Expected repost time from indexedAt, got %q", got)
	}
}

func TestBlueskyAppendsExternalLinkWhenMissingFromBody(t *testing.T) {
	timeline := `{"feed":[
		{
			"post": {
				"uri": "at://did:plc:followed/app.bsky.feed.post/post1",
				"cid": "cid1",
				"author": {"did": "did:plc:followed", "handle": "followed.bsky.social"},
				"record": {"text": "look at this", "createdAt": "2026-08-29T12:00:00Z"},
				"embed": {
					"$type": "app.bsky.embed.external#view",
					"external": {"uri": "https://example.com/article", "thumb": "https://cdn/thumb.jpg"}
				}
			}
		}
	]}`

	server := fakeBlueskyServer(t, timeline)
	adapter := NewBluesky([]sources.BlueskyAccount{
		{Server: server.URL, Username: "viewer.bsky.social", Password: "app-password"},
	}, server.Client())

	items, err := adapter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Text != "look at this\n\nhttps://example.com/article" {
		t.Errorf("Expected appended external link, got %q", items[0].Text)
	}
}

func TestBlueskyResolvesQuotedPost(t *testing.T) {
	timeline := `{"feed":[
		{
			"post": {
				"uri": "at://did:plc:followed/app.bsky.feed.post/post1",
				"cid": "cid1",
				"author": {"did": "did:plc:followed", "handle": "followed.bsky.social"},
				"record": {"text": "quoting this", "createdAt": "2026-08-29T12:00:00Z"},
				"embed": {
					"$type": "app.bsky.embed.record#view",
					"record": {
						"uri": "at://did:plc:quoted/app.bsky.feed.post/quoted1",
						"cid": "cid-quoted",
						"author": {"did": "did:plc:quoted", "handle": "quoted.bsky.social"},
						"value": {"text": "original words", "createdAt": "2026-08-29T10:00:00Z"}
					}
				}
			}
		}
	]}`

	server := fakeBlueskyServer(t, timeline)
	adapter := NewBluesky([]sources.BlueskyAccount{
		{Server: server.URL, Username: "viewer.bsky.social", Password: "app-password"},
	}, server.Client())

	items, err := adapter.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("Failed to fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	quoted := items[0].QuotedPost
	if quoted == nil {
		t.Fatal("Expected quoted post")
	}
	if quoted.Text != "original words" || quoted.Author != "@quoted.bsky.social" {
		t.Errorf("Unexpected quoted post: %+v", quoted)
	}
	if quoted.QuotedPost != nil {
		t.Error("Expected quote nesting to stop at one level")
	}
}
