// ABOUTME: Token sources for HubSpot authentication
// ABOUTME: Uses a private app token, or a stored OAuth token refreshed through the HubSpot OAuth app
package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://app.hubspot.com/oauth/authorize",
	TokenURL: "https://api.hubapi.com/oauth/v1/token",
}

// ErrNoCredentials means neither a private app token nor a stored OAuth token is available.
var ErrNoCredentials = errors.New("no hubspot credentials configured")

type Credentials struct {
	PrivateAppToken string
	ClientID        string
	ClientSecret    string
	TokenPath       string
}

// NewOAuthConfig creates the OAuth2 config for a HubSpot public app.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scopes: []string{
			"crm.objects.contacts.read",
			"crm.objects.contacts.write",
			"crm.objects.companies.read",
			"crm.objects.orders.write",
			"crm.objects.owners.read",
		},
		Endpoint: Endpoint,
	}
}

// TokenPath returns the XDG path for a stored OAuth token.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "fieldsync", "hubspot-token.json")
}

// TokenSource picks the private app token when set, else the stored OAuth
// token, refreshed through the app credentials.
func TokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	if creds.PrivateAppToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.PrivateAppToken, TokenType: "Bearer"}), nil
	}

	path := creds.TokenPath
	if path == "" {
		path = TokenPath()
	}
	token, err := LoadToken(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, err
	}

	return NewOAuthConfig(creds.ClientID, creds.ClientSecret).TokenSource(ctx, token), nil
}

// SaveToken writes an OAuth token with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	return &token, nil
}
