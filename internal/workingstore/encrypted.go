package workingstore

import (
	"context"
	"fmt"
	"io"

	"cms-go/internal/cms"
	"cms-go/internal/encryption"
)

// EncryptedStore seals bodies before they reach the inner store. Keys stay in
// plaintext so prefix listing keeps working.
type EncryptedStore struct {
	inner cms.WorkingStore
	enc   encryption.Encryptor
	dec   encryption.DecryptionContext
}

var _ cms.ConditionalWorkingStore = (*EncryptedStore)(nil)

// NewEncryptedStore wraps inner. dec may be nil for a write-only process; Get
// then fails.
func NewEncryptedStore(inner cms.WorkingStore, enc encryption.Encryptor, dec encryption.DecryptionContext) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc, dec: dec}
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.dec == nil {
		return nil, fmt.Errorf("working store is locked: %w", cms.ErrNotConfigured)
	}
	body, err := encryption.Open(s.dec, sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return body, nil
}

func (s *EncryptedStore) Put(ctx context.Context, key string, body []byte) error {
	sealed, err := encryption.Seal(s.enc, body)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return s.inner.Put(ctx, key, sealed)
}

// PutIfAbsent falls back to a Get-then-Put when the inner store has no
// conditional write.
func (s *EncryptedStore) PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error) {
	sealed, err := encryption.Seal(s.enc, body)
	if err != nil {
		return false, fmt.Errorf("encrypting %s: %w", key, err)
	}
	if c, ok := s.inner.(cms.ConditionalWorkingStore); ok {
		return c.PutIfAbsent(ctx, key, sealed)
	}
	if _, err := s.inner.Get(ctx, key); err == nil {
		return false, nil
	} else if cms.KindOf(err) != cms.KindNotFound {
		return false, err
	}
	return true, s.inner.Put(ctx, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Close closes the inner store when it holds resources.
func (s *EncryptedStore) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
