package blob

import "fmt"

// Store types accepted by New.
const (
	TypeMemory     = "memory"
	TypeFileSystem = "filesystem"
	TypeS3         = "s3"
)

// Config selects and locates a store.
type Config struct {
	Type string
	Root string
	S3   S3Config
}

// New creates the store described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeFileSystem:
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires a root")
		}
		return NewFileSystemStore(cfg.Root)
	case TypeS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
