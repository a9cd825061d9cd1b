// Package oauth2 implements federated login: the authorization redirect,
// the callback's code exchange and profile fetch, and provisioning of a
// local passport account for the remote user.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Profile is the subset of the provider's user record passport uses.
type Profile struct {
	// Login is the provider's stable identifier for the user.
	Login       string
	Email       string
	DisplayName string
	Raw         map[string]any
}

// Provider describes one OAuth2 identity provider.
type Provider interface {
	// Name prefixes local usernames, e.g. "github".
	Name() string
	Config() *oauth2.Config
	// FetchProfile loads the user behind token using client.
	FetchProfile(ctx context.Context, client *http.Client, token *oauth2.Token) (*Profile, error)
}

// BaseOAuth2 carries the client registration shared by all providers.
type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	// UserInfoURL is the profile endpoint. Can be overridden for testing.
	UserInfoURL string

	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:     strings.TrimSpace(clientId),
		ClientSecret: strings.TrimSpace(clientSecret),
		CallbackURL:  strings.TrimSpace(callbackUrl),
		oauthConfig: oauth2.Config{
			ClientID:     strings.TrimSpace(clientId),
			ClientSecret: strings.TrimSpace(clientSecret),
			RedirectURL:  strings.TrimSpace(callbackUrl),
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

func (b *BaseOAuth2) Config() *oauth2.Config { return &b.oauthConfig }

// SetEndpoint points the provider at other authorization and token URLs.
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// getUserData fetches UserInfoURL with the access token as a bearer.
func (b *BaseOAuth2) getUserData(ctx context.Context, client *http.Client, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned status %d", response.StatusCode)
	}

	var userInfo map[string]any
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return userInfo, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
