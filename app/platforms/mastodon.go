package platforms

import (
	"context"
	"log/slog"
	"net/http"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/mastodon"
	"github.com/lysyi3m/social-comb/app/sources"
	"github.com/lysyi3m/social-comb/app/state"
)

const mastodonTimelineLimit = 50

// Mastodon aggregates the home timelines of the configured users.
// Users without stored credentials are skipped silently: they show up
// in the unauthenticated-accounts endpoint instead of failing the
// fetch.
type Mastodon struct {
	followings []sources.MastodonUser
	store      *state.Store[mastodon.Credentials]
	httpClient *http.Client
}

var _ SocialPlatform = (*Mastodon)(nil)

func NewMastodon(followings []sources.MastodonUser, store *state.Store[mastodon.Credentials], httpClient *http.Client) *Mastodon {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Mastodon{followings: followings, store: store, httpClient: httpClient}
}

func (m *Mastodon) PlatformID() feed.Platform {
	return feed.PlatformMastodon
}

func (m *Mastodon) FetchFeed(ctx context.Context) ([]feed.Item, error) {
	credentials, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	items := []feed.Item{}
	for _, user := range m.followings {
		config, ok := credentials.FindClientConfiguration(user.InstanceName(), user.FullUsername())
		if !ok {
			slog.Debug("No credentials for Mastodon user yet, skipping", "user", user.FullUsername())
			continue
		}

		userItems, err := m.fetchTimeline(ctx, user, config)
		if err != nil {
			slog.Error("Failed to fetch Mastodon timeline", "user", user.FullUsername(), "error", err)
			continue
		}
		items = append(items, userItems...)
	}
	return items, nil
}

func (m *Mastodon) fetchTimeline(ctx context.Context, user sources.MastodonUser, config mastodon.ClientConfiguration) ([]feed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	client := gomastodon.NewClient(&gomastodon.Config{
		Server:       user.Server,
		ClientID:     config.ClientApplication.ClientID,
		ClientSecret: config.ClientApplication.ClientSecret,
		AccessToken:  config.AccessToken,
	})
	client.Client = *m.httpClient

	statuses, err := client.GetTimelineHome(ctx, &gomastodon.Pagination{Limit: mastodonTimelineLimit})
	if err != nil {
		return nil, err
	}

	items := make([]feed.Item, 0, len(statuses))
	for _, status := range statuses {
		items = append(items, statusToItem(status, user.Server))
	}
	return items, nil
}

// statusToItem normalizes one status. A boost keeps the boosting
// status's identity but carries the boosted status as quotedPost plus
// repost metadata; nesting stops there.
func statusToItem(status *gomastodon.Status, serverBaseURL string) feed.Item {
	item := feed.Item{
		Text:             status.Content,
		Author:           statusAuthor(status),
		AuthorImageURL:   status.Account.AvatarStatic,
		ID:               statusID(status),
		Published:        status.CreatedAt,
		Link:             statusLink(status, serverBaseURL),
		Platform:         feed.PlatformMastodon,
		MediaAttachments: attachmentsToMedia(status.MediaAttachments),
	}

	if status.Reblog != nil {
		quoted := statusToItem(status.Reblog, serverBaseURL)
		quoted.QuotedPost = nil
		quoted.RepostMeta = nil
		item.QuotedPost = &quoted
		item.RepostMeta = &feed.RepostMeta{
			RepostingAuthor:         statusAuthor(status),
			RepostingAuthorImageURL: status.Account.AvatarStatic,
			TimeOfRepost:            status.CreatedAt,
		}
	}
	return item
}

func statusAuthor(status *gomastodon.Status) string {
	if status.Account.Acct == "" {
		return "MISSING_ACCOUNT"
	}
	return "@" + status.Account.Acct
}

func statusID(status *gomastodon.Status) string {
	if status.ID != "" {
		return string(status.ID)
	}
	return status.URI
}

// statusLink builds the permalink on the viewer's own instance so the
// link opens with the viewer's session; remote URLs are the fallback.
func statusLink(status *gomastodon.Status, serverBaseURL string) string {
	if status.ID != "" && status.Account.Acct != "" {
		return serverBaseURL + "/@" + status.Account.Acct + "/" + string(status.ID)
	}
	if status.URL != "" {
		return status.URL
	}
	return status.URI
}

func attachmentsToMedia(attachments []gomastodon.Attachment) []feed.MediaAttachment {
	var media []feed.MediaAttachment
	for _, attachment := range attachments {
		var mediaType feed.MediaType
		switch attachment.Type {
		case "image":
			mediaType = feed.MediaTypeImage
		case "video":
			mediaType = feed.MediaTypeVideo
		case "gifv":
			mediaType = feed.MediaTypeGifv
		default:
			continue
		}
		media = append(media, feed.MediaAttachment{
			Type:            mediaType,
			PreviewImageURL: attachment.PreviewURL,
			FullURL:         attachment.URL,
		})
	}
	return media
}
