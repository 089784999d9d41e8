package drive

import "context"

// Ports for outbound adapters.
type (
	// SnapshotUploader persists a named snapshot payload to remote storage
	// and returns a reference to the stored object.
	SnapshotUploader interface {
		Upload(ctx context.Context, name string, payload []byte) (ref string, err error)
	}
)
