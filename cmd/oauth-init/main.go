// Command oauth-init runs the one-time interactive OAuth flow that
// produces a Drive refresh token for personal accounts. Deployments
// using a service account never need it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"bilancio/internal/config"
	gdrive "bilancio/internal/drive/google"
	"bilancio/internal/log"
)

const authWaitTimeout = 5 * time.Minute

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(os.Stdout, "oauth-init", slog.LevelInfo)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("OAuth bootstrap failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	credentials, err := loadClientCredentials(cfg)
	if err != nil {
		return err
	}

	oauthCfg, err := gdrive.NewOAuthConfig(credentials, cfg.OAuthRedirectPort)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := waitForAuthCode(ctx, oauthCfg, cfg.OAuthRedirectPort, logger)
	if err != nil {
		return err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	if err := writeToken(cfg.OAuthTokenFile, token); err != nil {
		return err
	}
	logger.Info("Token saved", "path", cfg.OAuthTokenFile)
	return nil
}

func loadClientCredentials(cfg *config.Config) ([]byte, error) {
	switch {
	case cfg.OAuthClientJSON != "":
		return []byte(cfg.OAuthClientJSON), nil
	case cfg.OAuthClientFile != "":
		b, err := os.ReadFile(cfg.OAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

// waitForAuthCode serves the local callback endpoint and blocks until
// Google redirects back with an authorization code.
func waitForAuthCode(ctx context.Context, oauthCfg *oauth2.Config, port string, logger *log.Logger) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		if reason := r.URL.Query().Get("error"); reason != "" {
			http.Error(w, "authorization refused: "+reason, http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization refused: %s", reason)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this tab.")
		codeCh <- r.URL.Query().Get("code")
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("callback server: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := oauthCfg.AuthCodeURL("bilancio-oauth", oauth2.AccessTypeOffline)
	fmt.Printf("Open this URL in a browser to grant Drive access:\n\n  %s\n\n", authURL)
	logger.Info("Waiting for authorization", "port", port)

	select {
	case code := <-codeCh:
		return code, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", errors.New("interrupted before authorization completed")
	case <-time.After(authWaitTimeout):
		return "", errors.New("timed out waiting for authorization")
	}
}

func writeToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return nil
}
