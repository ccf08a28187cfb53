package mastodon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gomastodon "github.com/mattn/go-mastodon"

	"github.com/lysyi3m/social-comb/app/feed"
	"github.com/lysyi3m/social-comb/app/sources"
	"github.com/lysyi3m/social-comb/app/state"
)

const (
	appName    = "Social Comb"
	oauthScope = "read"

	// CompleteAuthPath is where the instance redirects the browser
	// after the user grants access.
	CompleteAuthPath = "/authorize/mastodon/complete"
)

// Refresher triggers an immediate re-fetch for one platform, bypassing
// the regular polling interval. Implemented by the feed monitor.
type Refresher interface {
	RequestImmediateUpdate(ctx context.Context, platform feed.Platform)
}

// Authenticator drives the OAuth authorization-code flow against
// Mastodon instances and persists the resulting credentials.
type Authenticator struct {
	store       *state.Store[Credentials]
	refresher   Refresher
	httpClient  *http.Client
	instanceURL func(instanceName string) string
}

type Option func(*Authenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) { a.httpClient = client }
}

// WithInstanceURL overrides how an instance name maps to a base URL.
// The default prefixes https://.
func WithInstanceURL(resolve func(instanceName string) string) Option {
	return func(a *Authenticator) { a.instanceURL = resolve }
}

func NewAuthenticator(store *state.Store[Credentials], refresher Refresher, opts ...Option) *Authenticator {
	a := &Authenticator{
		store:      store,
		refresher:  refresher,
		httpClient: http.DefaultClient,
		instanceURL: func(instanceName string) string {
			return "https://" + instanceName
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnsureAppRegistration makes sure the instance has a registered
// client application, registering one on first use. The registration
// is shared by every account on the instance.
func (a *Authenticator) EnsureAppRegistration(ctx context.Context, instanceName, redirectURI string) (ClientApplication, error) {
	credentials, err := a.store.Load()
	if err != nil {
		return ClientApplication{}, err
	}
	if server, ok := credentials.Servers[instanceName]; ok && server.ClientApplication != nil {
		return *server.ClientApplication, nil
	}

	slog.Info("Registering OAuth application", "instance", instanceName)
	registered, err := gomastodon.RegisterApp(ctx, &gomastodon.AppConfig{
		Client:       *a.httpClient,
		Server:       a.instanceURL(instanceName),
		ClientName:   appName,
		Scopes:       oauthScope,
		RedirectURIs: redirectURI,
	})
	if err != nil {
		return ClientApplication{}, fmt.Errorf("failed to register application on %s: %w", instanceName, err)
	}

	app := ClientApplication{ClientID: registered.ClientID, ClientSecret: registered.ClientSecret}
	err = a.store.Update(func(c Credentials) Credentials {
		// Another request may have registered concurrently; keep the
		// stored application so both flows use the same client_id.
		if server, ok := c.Servers[instanceName]; ok && server.ClientApplication != nil {
			app = *server.ClientApplication
			return c
		}
		return c.WithClientApplication(instanceName, app)
	})
	if err != nil {
		return ClientApplication{}, err
	}
	return app, nil
}

// StartAuthorization registers the app if needed and returns the
// instance's authorization URL the browser should be redirected to.
func (a *Authenticator) StartAuthorization(ctx context.Context, instanceName, baseURL string) (string, error) {
	redirectURI := redirectURIFor(baseURL)
	app, err := a.EnsureAppRegistration(ctx, instanceName, redirectURI)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("client_id", app.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", oauthScope)
	return a.instanceURL(instanceName) + "/oauth/authorize?" + query.Encode(), nil
}

// CompleteAuthorization exchanges the authorization code for an access
// token, resolves which account it belongs to, persists the token and
// triggers an immediate Mastodon re-fetch so the feed reflects the new
// account without waiting for the next polling cycle. Nothing is
// persisted when any step fails.
func (a *Authenticator) CompleteAuthorization(ctx context.Context, instanceName, baseURL, code string) (string, error) {
	credentials, err := a.store.Load()
	if err != nil {
		return "", err
	}
	server, ok := credentials.Servers[instanceName]
	if !ok || server.ClientApplication == nil {
		return "", fmt.Errorf("no registered application for %s, authorization must be started first", instanceName)
	}
	app := *server.ClientApplication

	client := gomastodon.NewClient(&gomastodon.Config{
		Server:       a.instanceURL(instanceName),
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	})
	client.Client = *a.httpClient

	if err := client.AuthenticateToken(ctx, code, redirectURIFor(baseURL)); err != nil {
		return "", fmt.Errorf("failed to exchange authorization code on %s: %w", instanceName, err)
	}

	account, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to verify credentials on %s: %w", instanceName, err)
	}

	fullUsername := account.Username + "@" + instanceName
	err = a.store.Update(func(c Credentials) Credentials {
		return c.WithToken(instanceName, fullUsername, client.Config.AccessToken)
	})
	if err != nil {
		return "", err
	}

	slog.Info("Completed Mastodon authorization", "account", fullUsername)
	if a.refresher != nil {
		a.refresher.RequestImmediateUpdate(ctx, feed.PlatformMastodon)
	}
	return fullUsername, nil
}

// MissingCredentials returns the followed users that cannot be fetched
// yet because nobody completed the authorization flow for them.
func (a *Authenticator) MissingCredentials(followings []sources.MastodonUser) ([]sources.MastodonUser, error) {
	credentials, err := a.store.Load()
	if err != nil {
		return nil, err
	}

	missing := []sources.MastodonUser{}
	for _, user := range followings {
		if _, ok := credentials.FindClientConfiguration(user.InstanceName(), user.FullUsername()); !ok {
			missing = append(missing, user)
		}
	}
	return missing, nil
}

func redirectURIFor(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + CompleteAuthPath
}
