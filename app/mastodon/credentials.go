// Package mastodon manages OAuth credentials for the Mastodon
// aggregation: a durable credential record per instance, plus the
// authorization-code flow that produces per-account access tokens.
package mastodon

import (
	"path/filepath"

	"github.com/lysyi3m/social-comb/app/state"
)

const credentialsFileName = "credentials_mastodon.json"

// ClientApplication is one registered OAuth application on one
// instance. It is registered lazily, at most once per instance, and
// shared by every account on that instance.
type ClientApplication struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type AccountToken struct {
	AccessToken string `json:"accessToken"`
}

// ServerCredentials holds everything known about one instance: the
// shared client application (nil until first registration) and the
// tokens of the accounts that completed authorization, keyed by the
// canonical "user@instance" name.
type ServerCredentials struct {
	ServerName        string                  `json:"serverName"`
	ClientApplication *ClientApplication      `json:"clientApplication,omitempty"`
	Accounts          map[string]AccountToken `json:"accounts"`
}

// Credentials is the whole durable record, keyed by bare instance
// name, e.g. "mastodon.social".
type Credentials struct {
	Servers map[string]ServerCredentials `json:"servers"`
}

func DefaultCredentials() Credentials {
	return Credentials{Servers: map[string]ServerCredentials{}}
}

// ClientConfiguration is the resolved view a timeline fetch needs:
// the app identity plus one account's token.
type ClientConfiguration struct {
	ClientApplication ClientApplication
	AccessToken       string
}

// WithClientApplication returns a copy with the instance's client
// application set, creating the server entry if needed.
func (c Credentials) WithClientApplication(instanceName string, app ClientApplication) Credentials {
	servers := copyServers(c.Servers)
	server, ok := servers[instanceName]
	if !ok {
		server = ServerCredentials{ServerName: instanceName, Accounts: map[string]AccountToken{}}
	}
	server.ClientApplication = &app
	servers[instanceName] = server
	c.Servers = servers
	return c
}

// WithToken returns a copy with the account's access token set.
// fullUsername is the "user@instance" form.
func (c Credentials) WithToken(instanceName, fullUsername, accessToken string) Credentials {
	servers := copyServers(c.Servers)
	server, ok := servers[instanceName]
	if !ok {
		server = ServerCredentials{ServerName: instanceName}
	}
	accounts := make(map[string]AccountToken, len(server.Accounts)+1)
	for name, token := range server.Accounts {
		accounts[name] = token
	}
	accounts[fullUsername] = AccountToken{AccessToken: accessToken}
	server.Accounts = accounts
	servers[instanceName] = server
	c.Servers = servers
	return c
}

// FindClientConfiguration resolves the app and token needed to fetch
// on behalf of the account. It reports false when the instance has no
// registered application or the account never completed authorization.
func (c Credentials) FindClientConfiguration(instanceName, fullUsername string) (ClientConfiguration, bool) {
	server, ok := c.Servers[instanceName]
	if !ok || server.ClientApplication == nil {
		return ClientConfiguration{}, false
	}
	token, ok := server.Accounts[fullUsername]
	if !ok || token.AccessToken == "" {
		return ClientConfiguration{}, false
	}
	return ClientConfiguration{
		ClientApplication: *server.ClientApplication,
		AccessToken:       token.AccessToken,
	}, true
}

func copyServers(servers map[string]ServerCredentials) map[string]ServerCredentials {
	copied := make(map[string]ServerCredentials, len(servers)+1)
	for name, server := range servers {
		copied[name] = server
	}
	return copied
}

// NewCredentialStore opens the durable credential record under
// dataDir.
func NewCredentialStore(dataDir string) *state.Store[Credentials] {
	return state.NewStore(filepath.Join(dataDir, credentialsFileName), DefaultCredentials)
}
