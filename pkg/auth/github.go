package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const defaultGitHubAPI = "https://api.github.com"

// ProfileProvider is an OAuth provider that can turn an authorization code
// into a user profile.
type ProfileProvider interface {
	AuthURL(state string) string
	ResolveProfile(ctx context.Context, code string) (gotier.Profile, error)
}

// GitHubConfig holds configuration for the GitHub OAuth adapter
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint and APIBaseURL default to github.com
	Endpoint   oauth2.Endpoint
	APIBaseURL string

	HTTPClient *http.Client
}

// GitHub resolves sign-in profiles from GitHub
type GitHub struct {
	conf       *oauth2.Config
	apiBase    string
	httpClient *http.Client
}

// NewGitHub creates a new GitHub OAuth adapter
func NewGitHub(cfg GitHubConfig) *GitHub {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultGitHubAPI
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &GitHub{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		apiBase:    apiBase,
		httpClient: client,
	}
}

// AuthURL builds the GitHub authorization URL with the given state token.
func (g *GitHub) AuthURL(state string) string {
	return g.conf.AuthCodeURL(state)
}

// ResolveProfile exchanges the code and reads the user and their emails.
// The primary verified email is preferred, then any verified one.
func (g *GitHub) ResolveProfile(ctx context.Context, code string) (gotier.Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return gotier.Profile{}, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	var user ghUser
	if err := g.get(ctx, tok.AccessToken, "/user", &user); err != nil {
		return gotier.Profile{}, fmt.Errorf("fetch github user: %w", err)
	}
	var emails []ghEmail
	if err := g.get(ctx, tok.AccessToken, "/user/emails", &emails); err != nil {
		return gotier.Profile{}, fmt.Errorf("fetch github emails: %w", err)
	}

	email := pickEmail(emails)
	if email == "" {
		return gotier.Profile{}, ErrNoPrimaryEmail
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}
	return gotier.Profile{
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Name:          name,
		Image:         user.AvatarURL,
		EmailVerified: true,
	}, nil
}

func (g *GitHub) get(ctx context.Context, accessToken, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func pickEmail(emails []ghEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}

type ghUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type ghEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var _ ProfileProvider = (*GitHub)(nil)
