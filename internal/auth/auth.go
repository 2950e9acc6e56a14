// Package auth obtains Azure Active Directory bearer tokens for the Data
// Lake Store resource. It picks one of three prompt behaviours from the
// supplied credentials: service principals never prompt, a bare user name
// always prompts through the device code flow, and everything else tries a
// password grant or a cached token before prompting.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/adltransfer/internal/secret"
	"github.com/tonimelisma/adltransfer/internal/tokenfile"
)

// DefaultTenant is used when no tenant id is supplied.
const DefaultTenant = "common"

// Data Lake Store resource scopes.
const (
	resourceScope         = "https://datalake.azure.net//user_impersonation"
	servicePrincipalScope = "https://datalake.azure.net//.default"
	offlineAccessScope    = "offline_access"
)

var userScopes = []string{resourceScope, offlineAccessScope}

// Sentinel errors.
var (
	ErrPromptUnavailable = errors.New("auth: interactive sign-in requires a terminal on stdin")
	ErrMissingSecret     = errors.New("auth: service principal requires an authentication key")
)

// Mode is the prompt behaviour selected for a set of credentials.
type Mode int

const (
	// ModeNever authenticates without user interaction (service principal).
	ModeNever Mode = iota
	// ModeAlways shows the device code prompt on every run.
	ModeAlways
	// ModeAuto uses a password or cached token and prompts only when needed.
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeNever:
		return "never"
	case ModeAlways:
		return "always"
	case ModeAuto:
		return "auto"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Credentials identify the caller. UserName holds the client id when
// ServicePrincipal is set. An empty TenantID means the common tenant.
type Credentials struct {
	UserName         string
	Secret           *secret.Secret
	TenantID         string
	ServicePrincipal bool
}

// SelectMode picks the prompt behaviour for creds.
func SelectMode(creds Credentials) Mode {
	switch {
	case creds.ServicePrincipal:
		return ModeNever
	case creds.UserName != "" && creds.Secret.Len() == 0:
		return ModeAlways
	default:
		return ModeAuto
	}
}

// DeviceAuth holds the device code response fields that the CLI displays to
// the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
	UserName        string
}

// TokenSource provides bearer tokens for the Data Lake client.
type TokenSource interface {
	Token() (string, error)
}

// Config configures an Authenticator.
type Config struct {
	ClientID      string
	DefaultTenant string
	// TokenPath returns the cache file for a tenant. Nil or "" disables the
	// token cache.
	TokenPath func(tenant string) string
	// HTTPClient is used for token requests. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Interactive reports whether prompting is possible. Nil checks that
	// stdin is a terminal.
	Interactive func() bool
}

// Authenticator turns Credentials into a TokenSource.
type Authenticator struct {
	cfg      Config
	logger   *slog.Logger
	endpoint func(tenant string) oauth2.Endpoint
}

// New creates an Authenticator.
func New(cfg Config, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = DefaultTenant
	}

	if cfg.Interactive == nil {
		cfg.Interactive = stdinIsTerminal
	}

	return &Authenticator{
		cfg:      cfg,
		logger:   logger,
		endpoint: microsoft.AzureADEndpoint,
	}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Authenticate obtains a token source for creds. prompt is called with the
// device code when the user has to sign in interactively. The returned
// source is bound to ctx for silent refreshes, so ctx must outlive it.
func (a *Authenticator) Authenticate(
	ctx context.Context,
	creds Credentials,
	prompt func(DeviceAuth),
) (TokenSource, error) {
	tenant := a.tenant(creds)
	mode := SelectMode(creds)

	a.logger.Info("authenticating",
		slog.String("tenant", tenant),
		slog.String("mode", mode.String()),
	)

	if a.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
	}

	switch mode {
	case ModeNever:
		return a.servicePrincipal(ctx, tenant, creds)
	case ModeAlways:
		return a.deviceCode(ctx, tenant, creds.UserName, prompt)
	default:
		if creds.UserName != "" && creds.Secret.Len() > 0 {
			return a.password(ctx, tenant, creds)
		}

		if ts := a.cached(ctx, tenant, creds.UserName); ts != nil {
			return ts, nil
		}

		return a.deviceCode(ctx, tenant, creds.UserName, prompt)
	}
}

// Forget removes the cached token for tenant.
func (a *Authenticator) Forget(tenant string) error {
	path := a.tokenPath(tenant)
	if path == "" {
		return nil
	}

	a.logger.Info("removing cached token", slog.String("path", path))

	return tokenfile.Remove(path)
}

func (a *Authenticator) tenant(creds Credentials) string {
	if creds.TenantID != "" {
		return creds.TenantID
	}

	return a.cfg.DefaultTenant
}

func (a *Authenticator) tokenPath(tenant string) string {
	if a.cfg.TokenPath == nil {
		return ""
	}

	return a.cfg.TokenPath(tenant)
}

// servicePrincipal runs the client credentials grant. The key is revealed
// only for the duration of building the grant.
func (a *Authenticator) servicePrincipal(ctx context.Context, tenant string, creds Credentials) (TokenSource, error) {
	if creds.Secret.Len() == 0 {
		return nil, ErrMissingSecret
	}

	endpoint := a.endpoint(tenant)

	var cc *clientcredentials.Config

	err := creds.Secret.Reveal(func(key []byte) error {
		cc = &clientcredentials.Config{
			ClientID:     creds.UserName,
			ClientSecret: string(key),
			TokenURL:     endpoint.TokenURL,
			Scopes:       []string{servicePrincipalScope},
			AuthStyle:    endpoint.AuthStyle,
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: reading authentication key: %w", err)
	}

	src := cc.TokenSource(ctx)

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("auth: service principal sign-in failed: %w", err)
	}

	a.logger.Info("service principal authenticated", slog.Time("expiry", tok.Expiry))

	return &tokenBridge{src: src, logger: a.logger}, nil
}

// password runs the resource owner password grant and caches the result.
func (a *Authenticator) password(ctx context.Context, tenant string, creds Credentials) (TokenSource, error) {
	cfg := a.oauthConfig(tenant, creds.UserName)

	var (
		tok      *oauth2.Token
		tokenErr error
	)

	err := creds.Secret.Reveal(func(pw []byte) error {
		tok, tokenErr = cfg.PasswordCredentialsToken(ctx, creds.UserName, string(pw))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: reading password: %w", err)
	}

	if tokenErr != nil {
		return nil, fmt.Errorf("auth: password sign-in failed: %w", tokenErr)
	}

	a.logger.Info("password grant succeeded", slog.Time("expiry", tok.Expiry))
	a.save(tenant, creds.UserName, tok)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: a.logger}, nil
}

// deviceCode runs the device authorization flow. The verification code is
// handed to prompt; polling stops when the user signs in, declines, or ctx
// ends.
func (a *Authenticator) deviceCode(
	ctx context.Context,
	tenant, user string,
	prompt func(DeviceAuth),
) (TokenSource, error) {
	if !a.cfg.Interactive() {
		return nil, ErrPromptUnavailable
	}

	cfg := a.oauthConfig(tenant, user)

	var opts []oauth2.AuthCodeOption
	if user != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", user))
	}

	da, err := cfg.DeviceAuth(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	a.logger.Info("device code received, waiting for user authorization")

	if prompt != nil {
		prompt(DeviceAuth{
			UserCode:        da.UserCode,
			VerificationURI: da.VerificationURI,
			UserName:        user,
		})
	}

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	a.logger.Info("user authorized", slog.Time("expiry", tok.Expiry))
	a.save(tenant, user, tok)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: a.logger}, nil
}

// cached returns a token source built from the token cache, or nil when no
// usable token is cached. A cached token that cannot be refreshed is
// discarded.
func (a *Authenticator) cached(ctx context.Context, tenant, user string) TokenSource {
	path := a.tokenPath(tenant)
	if path == "" {
		return nil
	}

	tf, err := tokenfile.Load(path)
	if err != nil {
		a.logger.Warn("ignoring unreadable token cache",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		a.forget(tenant)

		return nil
	}

	if !tf.Matches(a.cfg.ClientID, user) {
		return nil
	}

	cfg := a.oauthConfig(tenant, tf.User)
	src := cfg.TokenSource(ctx, tf.Token)

	if _, err := src.Token(); err != nil {
		a.logger.Warn("cached token could not be refreshed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		a.forget(tenant)

		return nil
	}

	a.logger.Info("using cached token", slog.String("path", path))

	return &tokenBridge{src: src, logger: a.logger}
}

func (a *Authenticator) forget(tenant string) {
	if err := a.Forget(tenant); err != nil {
		a.logger.Warn("failed to remove token cache", slog.String("error", err.Error()))
	}
}

// save persists tok in the token cache. Failures are logged, not returned:
// the token is still usable for this run.
func (a *Authenticator) save(tenant, user string, tok *oauth2.Token) {
	path := a.tokenPath(tenant)
	if path == "" {
		return
	}

	err := tokenfile.Save(path, &tokenfile.File{
		Token:    tok,
		Tenant:   tenant,
		ClientID: a.cfg.ClientID,
		User:     user,
	})
	if err != nil {
		a.logger.Warn("failed to cache token",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// oauthConfig builds the public-client config for user flows with
// OnTokenChange wired to persist refreshed tokens.
func (a *Authenticator) oauthConfig(tenant, user string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: a.cfg.ClientID,
		Scopes:   userScopes,
		Endpoint: a.endpoint(tenant),
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			a.logger.Info("token refreshed", slog.Time("new_expiry", tok.Expiry))
			a.save(tenant, user, tok)
		},
	}
}

// tokenBridge adapts oauth2.TokenSource to TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
