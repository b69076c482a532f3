package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/shared"
	"golang.org/x/oauth2"
)

// Scopes requested at login: profile and email for the account, library for sync.
var Scopes = []string{"user-read-private", "user-read-email", "user-library-read"}

// OAuthProvider implements [AuthProvider] and the authorization code flow for Spotify.
type OAuthProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthProvider creates an OAuth provider from the Spotify credentials.
//
// tokenURL overrides the token endpoint when non-empty.
func NewOAuthProvider(creds shared.SpotifyConfig, tokenURL string) (*OAuthProvider, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   spotifyAuthURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: http.DefaultClient,
	}, nil
}

// Config returns the underlying [oauth2.Config].
func (p *OAuthProvider) Config() *oauth2.Config {
	return p.config
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (p *OAuthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a credential.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (models.Credential, error) {
	tok, err := p.config.Exchange(p.context(ctx), code)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return CredentialFromToken(tok), nil
}

// Refresh exchanges the credential's refresh token for a new access token.
// The returned credential keeps the old refresh token when the provider does not rotate it.
func (p *OAuthProvider) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return models.Credential{}, shared.ErrNoRefreshToken
	}

	stale := &oauth2.Token{RefreshToken: cred.RefreshToken, Expiry: time.Unix(1, 0)}
	tok, err := p.config.TokenSource(p.context(ctx), stale).Token()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.Credential{}, err
		}
		return models.Credential{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	fresh := CredentialFromToken(tok)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	return fresh, nil
}

func (p *OAuthProvider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// CredentialFromToken converts an [oauth2.Token] into a [models.Credential].
func CredentialFromToken(tok *oauth2.Token) models.Credential {
	return models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
