package metastore

import (
	"context"
	"time"
)

type (
	// MetaStore records the output files of optimizer runs so clients can
	// prune whole files by key range before reading any footer.
	MetaStore interface {
		// RecordFile inserts the entry, replacing any entry with the same name
		RecordFile(ctx context.Context, entry FileEntry) error
		// ListFiles returns the entries ordered by name
		ListFiles(ctx context.Context) ([]FileEntry, error)

		// Location names where entries are kept, for reporting
		Location() string

		Shutdown(ctx context.Context) error
	}

	FileEntry struct {
		Name       string    `json:"name"`
		Source     string    `json:"source"`
		Rows       int64     `json:"rows"`
		Partitions int       `json:"partitions"`
		Bytes      int64     `json:"bytes"`
		KeyColumn  string    `json:"key_column"`
		KeyMin     any       `json:"key_min"`
		KeyMax     any       `json:"key_max"`
		RunID      string    `json:"run_id"`
		CreatedAt  time.Time `json:"created_at"`
	}

	Manifest struct {
		UpdatedAt time.Time   `json:"updated_at"`
		Files     []FileEntry `json:"files"`
	}
)
