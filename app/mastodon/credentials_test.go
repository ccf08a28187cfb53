package mastodon

import (
	"testing"
)

func TestWithClientApplicationCreatesServerEntry(t *testing.T) {
	credentials := DefaultCredentials()

	updated := credentials.WithClientApplication("mastodon.social", ClientApplication{
		ClientID:     "id",
		ClientSecret: "secret",
	})

	server, ok := updated.Servers["mastodon.social"]
	if !ok {
		t.Fatal("Expected server entry to be created")
	}
	if server.ClientApplication == nil || server.ClientApplication.ClientID != "id" {
		t.Errorf("Unexpected client application: %+v", server.ClientApplication)
	}
	if server.ServerName != "mastodon.social" {
		t.Errorf("Expected server name mastodon.social, got %q", server.ServerName)
	}

	// The original must be untouched.
	if len(credentials.Servers) != 0 {
		t.Error("Original credentials were mutated")
	}
}

func TestWithTokenUpsertsAccount(t *testing.T) {
	credentials := DefaultCredentials().
		WithClientApplication("mastodon.social", ClientApplication{ClientID: "id", ClientSecret: "secret"}).
		WithToken("mastodon.social", "alice@mastodon.social", "token-1")

	updated := credentials.WithToken("mastodon.social", "alice@mastodon.social", "token-2")

	if got := updated.Servers["mastodon.social"].Accounts["alice@mastodon.social"].AccessToken; got != "token-2" {
		t.Errorf("Expected token-2, got %q", got)
	}
	if got := credentials.Servers["mastodon.social"].Accounts["alice@mastodon.social"].AccessToken; got != "token-1" {
		t.Errorf("Original credentials were mutated, got %q", got)
	}
}

func TestFindClientConfiguration(t *testing.T) {
	credentials := DefaultCredentials().
		WithClientApplication("mastodon.social", ClientApplication{ClientID: "id", ClientSecret: "secret"}).
		WithToken("mastodon.social", "alice@mastodon.social", "token")

	config, ok := credentials.FindClientConfiguration("mastodon.social", "alice@mastodon.social")
	if !ok {
		t.Fatal("Expected configuration to be found")
	}
	if config.ClientApplication.ClientID != "id" || config.AccessToken != "token" {
		t.Errorf("Unexpected configuration: %+v", config)
	}

	if _, ok := credentials.FindClientConfiguration("mastodon.social", "bob@mastodon.social"); ok {
		t.Error("Expected no configuration for unauthorized account")
	}
	if _, ok := credentials.FindClientConfiguration("other.instance", "alice@other.instance"); ok {
		t.Error("Expected no configuration for unknown instance")
	}
}

func TestFindClientConfigurationRequiresApplication(t *testing.T) {
	// A token without a registered application is unusable.
	credentials := DefaultCredentials().
		WithToken("mastodon.social", "alice@mastodon.social", "token")

	if _, ok := credentials.FindClientConfiguration("mastodon.social", "alice@mastodon.social"); ok {
		t.Error("Expected no configuration when the application is missing")
	}
}
