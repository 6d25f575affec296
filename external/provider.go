// Package external signs users in with Google and Facebook over OAuth 2.0
// and maps each provider's userinfo payload to a shopauth.ExternalIdentity.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/MrEthical07/shopauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
)

// Provider names as stored in user logins.
const (
	Google   = "Google"
	Facebook = "Facebook"
)

const (
	googleUserInfoURL   = "https://openidconnect.googleapis.com/v1/userinfo"
	facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,email,first_name,last_name"

	maxUserInfoBytes = 1 << 20
)

var (
	// ErrUnknownProvider is returned for provider names without credentials.
	ErrUnknownProvider = errors.New("unknown external login provider")
	// ErrExchange wraps failures talking to the provider.
	ErrExchange = errors.New("external login exchange failed")
)

// Provider is one OAuth 2.0 identity provider.
type Provider struct {
	name        string
	config      oauth2.Config
	userInfoURL string
	decode      func([]byte) (shopauth.ExternalIdentity, error)
}

// Name is the provider name stored in user logins.
func (p *Provider) Name() string { return p.name }

// AuthCodeURL is where the browser goes to sign in. state must come back
// unchanged on the callback.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades the callback code for a token and fetches the user's
// identity with it.
func (p *Provider) Exchange(ctx context.Context, code string) (*shopauth.ExternalIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrExchange)
	}
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrExchange, resp.StatusCode)
	}

	id, err := p.decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if id.ProviderKey == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", ErrExchange)
	}
	id.Provider = p.name
	return &id, nil
}

func decodeGoogle(body []byte) (shopauth.ExternalIdentity, error) {
	var info struct {
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return shopauth.ExternalIdentity{}, err
	}
	return shopauth.ExternalIdentity{
		ProviderKey: info.Sub,
		Email:       info.Email,
		GivenName:   info.GivenName,
		FamilyName:  info.FamilyName,
	}, nil
}

func decodeFacebook(body []byte) (shopauth.ExternalIdentity, error) {
	var info struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return shopauth.ExternalIdentity{}, err
	}
	return shopauth.ExternalIdentity{
		ProviderKey: info.ID,
		Email:       info.Email,
		GivenName:   info.FirstName,
		FamilyName:  info.LastName,
	}, nil
}

// Registry holds the providers that have credentials configured.
type Registry struct {
	providers map[string]*Provider
}

// CallbackURL is the redirect URL registered with each provider.
func CallbackURL(baseURL, provider string) string {
	return strings.TrimRight(baseURL, "/") + "/Account/ExternalLoginCallback?provider=" + url.QueryEscape(provider)
}

// NewRegistry builds providers for every configured entry of cfg.
func NewRegistry(cfg shopauth.ExternalConfig, baseURL string) *Registry {
	r := &Registry{providers: make(map[string]*Provider)}
	if cfg.Google.Enabled() {
		r.add(&Provider{
			name: Google,
			config: oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  CallbackURL(baseURL, Google),
				Scopes:       []string{"openid", "email", "profile"},
			},
			userInfoURL: googleUserInfoURL,
			decode:      decodeGoogle,
		})
	}
	if cfg.Facebook.Enabled() {
		r.add(&Provider{
			name: Facebook,
			config: oauth2.Config{
				ClientID:     cfg.Facebook.ClientID,
				ClientSecret: cfg.Facebook.ClientSecret,
				Endpoint:     facebook.Endpoint,
				RedirectURL:  CallbackURL(baseURL, Facebook),
				Scopes:       []string{"email", "public_profile"},
			},
			userInfoURL: facebookUserInfoURL,
			decode:      decodeFacebook,
		})
	}
	return r
}

func (r *Registry) add(p *Provider) {
	r.providers[strings.ToLower(p.name)] = p
}

// Get looks a provider up case-insensitively.
func (r *Registry) Get(name string) (*Provider, error) {
	if r != nil {
		if p, ok := r.providers[strings.ToLower(name)]; ok {
			return p, nil
		}
	}
	return nil, ErrUnknownProvider
}

// Names lists the configured providers for the login page.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.name)
	}
	sort.Strings(out)
	return out
}
