package oauth2

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GithubUserInfoURL is GitHub's authenticated-user endpoint.
const GithubUserInfoURL = "https://api.github.com/user"

type GithubOAuth2 struct {
	*BaseOAuth2
}

// NewGithubOAuth2 requests the user:email scope.
func NewGithubOAuth2(clientId, clientSecret, callbackUrl string) *GithubOAuth2 {
	out := &GithubOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, github.Endpoint, "user:email"),
	}
	out.UserInfoURL = GithubUserInfoURL
	return out
}

func (g *GithubOAuth2) Name() string { return "github" }

// FetchProfile requires the "login" field; GitHub accounts without one
// cannot be mapped to a local username.
func (g *GithubOAuth2) FetchProfile(ctx context.Context, client *http.Client, token *oauth2.Token) (*Profile, error) {
	userInfo, err := g.getUserData(ctx, client, token)
	if err != nil {
		return nil, err
	}
	login := stringField(userInfo, "login")
	if login == "" {
		return nil, fmt.Errorf("github profile has no login")
	}
	name := stringField(userInfo, "name")
	if name == "" {
		name = login
	}
	return &Profile{
		Login:       login,
		Email:       stringField(userInfo, "email"),
		DisplayName: name,
		Raw:         userInfo,
	}, nil
}
