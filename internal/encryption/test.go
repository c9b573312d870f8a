package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// markerHeader prefixes every body the TestEncryptor seals.
var markerHeader = []byte("CMSENC\x00\x00")

// TestEncryptor marks bodies instead of encrypting them, so store tests can
// tell sealed bytes from plaintext without key files. Selected with
// encryption type "test".
type TestEncryptor struct {
	// Passphrase, when set, is the only passphrase Unlock accepts.
	Passphrase string
	ready      bool
}

var _ Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor { return &TestEncryptor{} }

func (e *TestEncryptor) Setup(passphrase string) error {
	e.Passphrase = passphrase
	e.ready = true
	return nil
}

func (e *TestEncryptor) ChangePassphrase(current, next string) error {
	if !e.accepts(current) {
		return errors.New("incorrect passphrase")
	}
	e.Passphrase = next
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(markerHeader); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	_, err := io.Copy(w, r)
	return err
}

func (e *TestEncryptor) Unlock(passphrase string) (DecryptionContext, error) {
	if !e.accepts(passphrase) {
		return nil, errors.New("incorrect passphrase")
	}
	return markerContext{}, nil
}

// IsConfigured is always true: the encryptor needs no key files.
func (e *TestEncryptor) IsConfigured() bool { return true }

func (e *TestEncryptor) accepts(passphrase string) bool {
	return e.Passphrase == "" || passphrase == e.Passphrase
}

type markerContext struct{}

func (markerContext) Decrypt(r io.Reader, w io.Writer) error {
	head := make([]byte, len(markerHeader))
	if _, err := io.ReadFull(r, head); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(head, markerHeader) {
		return errors.New("body was not sealed by the test encryptor")
	}
	_, err := io.Copy(w, r)
	return err
}
