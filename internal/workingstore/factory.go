package workingstore

import (
	"context"
	"fmt"

	"cms-go/internal/cms"
	"cms-go/internal/config"
	"cms-go/internal/encryption"
)

// NewWorkingStoreFromConfig builds the backend named by cfg.Type. When enc is
// non-nil the backend is wrapped in an EncryptedStore.
func NewWorkingStoreFromConfig(ctx context.Context, cfg config.WorkingStoreConfig, enc encryption.Encryptor, dec encryption.DecryptionContext) (cms.WorkingStore, error) {
	var (
		store cms.WorkingStore
		err   error
	)
	switch cfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem working store requires dir to be set")
		}
		store, err = NewFileSystemStore(cfg.Dir)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis working store requires redis_addr to be set")
		}
		store = NewRedisStore(NewRedisPool(cfg.RedisAddr, cfg.RedisDB))
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 working store requires s3_bucket to be set")
		}
		client, cerr := NewS3Client(ctx, cfg)
		if cerr != nil {
			return nil, cerr
		}
		store = NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown working store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if enc != nil {
		store = NewEncryptedStore(store, enc, dec)
	}
	return store, nil
}
