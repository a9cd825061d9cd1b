package oauth2

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuth2 struct {
	*BaseOAuth2
}

func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string) *GoogleOAuth2 {
	out := &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2(clientId, clientSecret, callbackUrl, google.Endpoint,
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		),
	}
	out.UserInfoURL = GoogleUserInfoURL
	return out
}

func (g *GoogleOAuth2) Name() string { return "google" }

// FetchProfile keys the account on the verified email address.
func (g *GoogleOAuth2) FetchProfile(ctx context.Context, client *http.Client, token *oauth2.Token) (*Profile, error) {
	userInfo, err := g.getUserData(ctx, client, token)
	if err != nil {
		return nil, err
	}
	email := stringField(userInfo, "email")
	if email == "" {
		return nil, fmt.Errorf("google profile has no email")
	}
	if verified, ok := userInfo["verified_email"].(bool); ok && !verified {
		return nil, fmt.Errorf("google email %s is not verified", email)
	}
	name := stringField(userInfo, "name")
	if name == "" {
		name = email
	}
	return &Profile{
		Login:       email,
		Email:       email,
		DisplayName: name,
		Raw:         userInfo,
	}, nil
}
