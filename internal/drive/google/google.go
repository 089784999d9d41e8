package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ports "bilancio/internal/drive"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"
)

// Client uploads period snapshots as JSON files into a Drive folder.
// Uploads are idempotent per file name: an existing file is overwritten,
// a missing one is created.
type Client struct {
	svc      *gdrive.Service
	folderID string
}

// Ensure interface conformance
var _ ports.SnapshotUploader = (*Client)(nil)

// NewFromEnv creates a Drive client using environment variables.
// Required: GOOGLE_DRIVE_FOLDER_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	folderID := strings.TrimSpace(os.Getenv("GOOGLE_DRIVE_FOLDER_ID"))
	if folderID == "" {
		return nil, errors.New("missing GOOGLE_DRIVE_FOLDER_ID")
	}

	svc, err := newDriveService(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	return &Client{svc: svc, folderID: folderID}, nil
}

// newDriveService initializes a Drive Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newDriveService(ctx context.Context) (*gdrive.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	slog.InfoContext(ctx, "Checking Service Account environment variables",
		"has_json", serviceAccountJSON != "",
		"file_path", serviceAccountFile,
		"json_length", len(serviceAccountJSON))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		slog.InfoContext(ctx, "Checking GOOGLE_APPLICATION_CREDENTIALS", "path", serviceAccountFile)
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveFileScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	slog.InfoContext(ctx, "Google Drive service created successfully")
	return service, nil
}

// Upload writes the payload to the file with the given name inside the
// configured folder, creating it on first upload and updating it afterwards.
func (c *Client) Upload(ctx context.Context, name string, payload []byte) (string, error) {
	if c.svc == nil {
		return "", errors.New("drive service not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("empty snapshot name")
	}

	fileID, err := c.findFile(ctx, name)
	if err != nil {
		return "", err
	}

	if fileID != "" {
		_, err = c.svc.Files.Update(fileID, &gdrive.File{}).
			Media(bytes.NewReader(payload)).
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update %s: %w", name, err)
		}
		return fileID, nil
	}

	created, err := c.svc.Files.Create(&gdrive.File{
		Name:     name,
		Parents:  []string{c.folderID},
		MimeType: "application/json",
	}).Media(bytes.NewReader(payload)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return created.Id, nil
}

// findFile looks the snapshot file up by name inside the folder. Returns an
// empty id when no file exists yet.
func (c *Client) findFile(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), c.folderID)
	resp, err := c.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list files named %s: %w", name, err)
	}
	if len(resp.Files) == 0 {
		return "", nil
	}
	return resp.Files[0].Id, nil
}

// escapeQuery escapes single quotes and backslashes for Drive query strings.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
