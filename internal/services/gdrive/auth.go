package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"sketchreel/internal/config"
	"sketchreel/internal/services"
)

// Scopes requested for the backend: read the shared input folder, write
// clips the application created.
var Scopes = []string{drive.DriveReadonlyScope, drive.DriveFileScope}

// OAuthConfig returns the installed-app OAuth configuration.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
		RedirectURL:  redirectURL,
	}
}

// NewService builds an authenticated Drive service from a stored refresh
// token. Extra client options are appended, which lets tests point the
// service at a local endpoint.
func NewService(ctx context.Context, creds config.GDrive, opts ...option.ClientOption) (*drive.Service, error) {
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gdrive", "auth", "client_id and client_secret required", nil)
	}
	if strings.TrimSpace(creds.RefreshToken) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gdrive", "auth", "refresh_token required (run `sketchreel gdrive auth`)", nil)
	}
	conf := OAuthConfig(creds.ClientID, creds.ClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gdrive", "new service", "", err)
	}
	return srv, nil
}

// AuthFlow runs the loopback OAuth consent flow that yields a refresh token.
type AuthFlow struct {
	ClientID     string
	ClientSecret string
	// Announce receives the consent URL; the caller prints or opens it.
	Announce func(authURL string)
	Timeout  time.Duration
	// Exchange defaults to the oauth2 code exchange.
	Exchange func(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error)
}

// ErrNoRefreshToken is returned when Google grants access without a refresh
// token, which happens when the app was already authorised without consent.
var ErrNoRefreshToken = errors.New("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")

// Run listens on a random loopback port, waits for the consent redirect and
// exchanges the code for a token.
func (f AuthFlow) Run(ctx context.Context) (*oauth2.Token, error) {
	if strings.TrimSpace(f.ClientID) == "" || strings.TrimSpace(f.ClientSecret) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gdrive", "auth", "client_id and client_secret required", nil)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	defer ln.Close()

	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr().String())
	conf := OAuthConfig(f.ClientID, f.ClientSecret, redirectURL)
	state := randomState()

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "invalid state", http.StatusBadRequest)
			sendErr(errCh, errors.New("invalid oauth state"))
		case q.Get("error") != "":
			http.Error(w, "auth error: "+q.Get("error"), http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("auth error: %s", q.Get("error")))
		case q.Get("code") == "":
			http.Error(w, "missing code", http.StatusBadRequest)
			sendErr(errCh, errors.New("missing authorization code"))
		default:
			fmt.Fprintln(w, "Authorised. You can close this window and return to the terminal.")
			select {
			case codeCh <- q.Get("code"):
			default:
			}
		}
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer srv.Close()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	if f.Announce != nil {
		f.Announce(authURL)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-timer.C:
		return nil, services.Wrap(services.ErrTimeout, "gdrive", "auth", "no authorisation received", nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	exchange := f.Exchange
	if exchange == nil {
		exchange = func(ctx context.Context, conf *oauth2.Config, code string) (*oauth2.Token, error) {
			return conf.Exchange(ctx, code)
		}
	}
	tok, err := exchange(ctx, conf, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		return nil, ErrNoRefreshToken
	}
	return tok, nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
