package google

import (
	"fmt"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
)

// NewOAuthConfig parses installed-app OAuth client credentials and binds
// them to the Drive file scope and the local callback listener that
// cmd/oauth-init runs during the one-time token bootstrap.
func NewOAuthConfig(credentials []byte, redirectPort string) (*oauth2.Config, error) {
	cfg, err := goauth.ConfigFromJSON(credentials, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client credentials: %w", err)
	}
	cfg.RedirectURL = "http://localhost:" + redirectPort + "/callback"
	return cfg, nil
}
