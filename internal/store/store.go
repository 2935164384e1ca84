package store

import "context"

// StoredFile is one transient binary payload cached for exactly one download.
type StoredFile struct {
	Data     []byte
	MimeType string
	FileName string
}

// FileStore maps job ids to files pushed back by the processing webhook.
// Take is the consume-once primitive: under concurrent downloads for the same
// job id exactly one caller receives the record.
type FileStore interface {
	Put(ctx context.Context, jobID string, f StoredFile) error
	Get(ctx context.Context, jobID string) (StoredFile, bool, error)
	Take(ctx context.Context, jobID string) (StoredFile, bool, error)
	Delete(ctx context.Context, jobID string) error
}
