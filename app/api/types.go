package api

import (
	"context"
	"net/http"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/mastodon"
	"github.com/lysyi3m/social-comb/app/monitor"
	"github.com/lysyi3m/social-comb/app/sources"
	"github.com/lysyi3m/social-comb/app/state"
)

type FeedProviderInterface interface {
	GetMergedFeed(corsRestricted bool) []feed.Item
	RetainedCounts() map[feed.Platform]int
	RequestImmediateUpdate(ctx context.Context, platform feed.Platform)
}

var _ FeedProviderInterface = (*monitor.Monitor)(nil)

type AuthenticatorInterface interface {
	StartAuthorization(ctx context.Context, instanceName, baseURL string) (string, error)
	CompleteAuthorization(ctx context.Context, instanceName, baseURL, code string) (string, error)
	MissingCredentials(followings []sources.MastodonUser) ([]sources.MastodonUser, error)
}

var _ AuthenticatorInterface = (*mastodon.Authenticator)(nil)

type Handler struct {
	feedProvider  FeedProviderInterface
	authenticator AuthenticatorInterface
	stateStore    *state.Store[state.State]
	followings    []sources.MastodonUser
	httpClient    *http.Client
}
