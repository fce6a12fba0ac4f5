package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OAuthConfig holds Google OAuth configuration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// DefaultOAuthConfig returns config from environment.
func DefaultOAuthConfig() OAuthConfig {
	return OAuthConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  "http://localhost:8765/callback",
	}
}

// OAuthFlow handles the OAuth2 authentication flow for an account.
type OAuthFlow struct {
	config *oauth2.Config
}

// NewOAuthFlow creates a flow with the scopes mail actions need.
func NewOAuthFlow(cfg OAuthConfig) *OAuthFlow {
	return &OAuthFlow{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gmail.GmailModifyScope,
				gmail.GmailSendScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthURL returns the URL for user authorization.
func (f *OAuthFlow) AuthURL(state string) string {
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for tokens.
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return f.config.Exchange(ctx, code)
}

// Service builds a Gmail API service from a stored token. The token source
// refreshes transparently.
func (f *OAuthFlow) Service(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	client := f.config.Client(ctx, token)
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

// Credential pairs an account with its stored token file.
type Credential struct {
	Account   Account
	TokenFile string
}

// NewGmailFromCredentials loads each account's token and builds the Gmail
// mailbox. Any account that fails to authenticate fails the whole build;
// a half-configured mailbox would silently drop actions.
func NewGmailFromCredentials(ctx context.Context, flow *OAuthFlow, creds []Credential) (*Gmail, error) {
	accounts := make([]Account, 0, len(creds))
	services := make(map[string]*gmail.Service, len(creds))
	for _, c := range creds {
		token, err := LoadToken(c.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", c.Account.ID, err)
		}
		svc, err := flow.Service(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", c.Account.ID, err)
		}
		accounts = append(accounts, c.Account)
		services[c.Account.ID] = svc
	}
	return NewGmail(accounts, services)
}

// LoadToken reads a serialized token from disk.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

// SaveToken writes a token to disk with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
