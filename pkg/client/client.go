// Package client provides OAuth2 client setup for Google APIs.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultCallbackPort is the port for the local OAuth callback server.
	DefaultCallbackPort = 8085
	// callbackPath is the path for the OAuth callback.
	callbackPath = "/callback"
	// serverTimeout is how long to wait for the OAuth callback.
	serverTimeout = 5 * time.Minute
)

// ErrNoToken is returned by New when no cached token exists and the
// interactive flow is disabled.
var ErrNoToken = errors.New("no oauth token found, run `finanzas setup` first")

// Options configures how the OAuth client is built.
type Options struct {
	// SecretFile is the client credentials JSON downloaded from Google Cloud.
	SecretFile string
	// TokenFile caches the user's token between runs.
	TokenFile string
	// Scopes requested from the user.
	Scopes []string
	// Interactive allows New to start the browser flow when no token is cached.
	Interactive bool
	// CallbackPort defaults to DefaultCallbackPort.
	CallbackPort int
	// Prompt receives the instructions shown during the browser flow.
	// Defaults to os.Stdout.
	Prompt io.Writer
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.CallbackPort == 0 {
		o.CallbackPort = DefaultCallbackPort
	}
	if o.Prompt == nil {
		o.Prompt = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// New creates an HTTP client authorized with the cached token. A refreshed
// token is written back to TokenFile.
func New(ctx context.Context, opts Options) (*http.Client, error) {
	opts.defaults()

	config, err := loadConfig(opts.SecretFile, opts.Scopes...)
	if err != nil {
		return nil, err
	}

	tok, err := TokenFromFile(opts.TokenFile)
	if err != nil {
		if !opts.Interactive {
			return nil, fmt.Errorf("%w (%s)", ErrNoToken, opts.TokenFile)
		}
		opts.Logger.Info("no existing token found, initiating OAuth flow")
		tok, err = getTokenFromWeb(ctx, config, opts)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(opts.TokenFile, tok); err != nil {
			opts.Logger.Error("failed to save token", "error", err)
		}
	}

	src := &savingTokenSource{
		base:   config.TokenSource(ctx, tok),
		path:   opts.TokenFile,
		last:   tok.AccessToken,
		logger: opts.Logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize always runs the browser flow and saves the new token.
func Authorize(ctx context.Context, opts Options) (*oauth2.Token, error) {
	opts.defaults()

	config, err := loadConfig(opts.SecretFile, opts.Scopes...)
	if err != nil {
		return nil, err
	}

	tok, err := getTokenFromWeb(ctx, config, opts)
	if err != nil {
		return nil, err
	}
	if err := SaveToken(opts.TokenFile, tok); err != nil {
		return nil, err
	}
	opts.Logger.Info("saved oauth token", "path", opts.TokenFile)
	return tok, nil
}

func loadConfig(secretFile string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(secretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	return config, nil
}

// savingTokenSource persists the token whenever the access token changes.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	last   string
	logger *slog.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("failed to save refreshed token", "error", err)
		}
	}
	return tok, nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, opts Options) (*oauth2.Token, error) {
	config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", opts.CallbackPort, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(ctx, opts, state, codeChan, errChan)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			opts.Logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(opts.Prompt, "\nOpening browser for Google authentication...\n")
	fmt.Fprintf(opts.Prompt, "If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)

	if err := openBrowser(ctx, authURL); err != nil {
		opts.Logger.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codeChan:
		tok, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Fprintln(opts.Prompt, "Authentication successful!")
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	}
}

// callbackHandler validates the redirect from Google and forwards the code.
// Each channel receives at most one value without blocking.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	fail := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			fail(errors.New("invalid state parameter"))
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if errMsg := q.Get("error"); errMsg != "" {
			fail(fmt.Errorf("%s: %s", errMsg, q.Get("error_description")))
			http.Error(w, fmt.Sprintf("Authentication failed: %s", errMsg), http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			fail(errors.New("no authorization code received"))
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>finanzas</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Autenticación exitosa</h1>
<p>Ya puedes cerrar esta ventana y volver a la terminal.</p>
</body>
</html>`)

		select {
		case codeChan <- code:
		default:
		}
	}
}

func startCallbackServer(ctx context.Context, opts Options, expectedState string, codeChan chan<- string, errChan chan<- error) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, callbackHandler(expectedState, codeChan, errChan))

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", opts.CallbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", opts.CallbackPort, err)
	}

	go func() {
		opts.Logger.Debug("starting OAuth callback server", "port", opts.CallbackPort)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("callback server error", "error", err)
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	return server, nil
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// TokenFromFile retrieves a token from a local file.
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// SaveToken saves a token to a file path, creating its directory.
func SaveToken(path string, token *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}

// TokenStatus summarizes a cached token for the status command.
type TokenStatus struct {
	Path          string
	Exists        bool
	HasRefresh    bool
	Expiry        time.Time
	AccessExpired bool
}

// InspectToken reports on the token cached at path. A missing file is not an error.
func InspectToken(path string, now time.Time) (TokenStatus, error) {
	st := TokenStatus{Path: path}
	tok, err := TokenFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Exists = true
	st.HasRefresh = tok.RefreshToken != ""
	st.Expiry = tok.Expiry
	st.AccessExpired = !tok.Expiry.IsZero() && now.After(tok.Expiry)
	return st, nil
}
