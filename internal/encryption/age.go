package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"

	"cms-go/internal/config"
)

// AgeEncryptor seals working copies to an X25519 recipient. The recipient
// line sits in a plaintext file beside the identity, which is itself wrapped
// with the operator's passphrase via age's scrypt recipient.
type AgeEncryptor struct {
	recipientPath string
	identityPath  string

	mu        sync.Mutex
	recipient age.Recipient
}

var _ Encryptor = (*AgeEncryptor)(nil)

func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		recipientPath: cfg.PublicKeyPath,
		identityPath:  cfg.PrivateKeyPath,
	}
}

// Setup creates the key pair. It refuses to replace an existing identity,
// since every sealed working copy would become unreadable.
func (e *AgeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase must not be empty")
	}
	if fileExists(e.identityPath) {
		return fmt.Errorf("private key already exists at %s", e.identityPath)
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.recipientPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.WriteFile(e.recipientPath, []byte(id.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	wrapped, err := wrapIdentity(id, passphrase)
	if err != nil {
		return err
	}
	if err := writeKeyFile(e.identityPath, wrapped); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// ChangePassphrase rewraps the identity under next. Sealed working copies are
// untouched because the identity itself does not change.
func (e *AgeEncryptor) ChangePassphrase(current, next string) error {
	if next == "" {
		return errors.New("new passphrase must not be empty")
	}
	id, err := e.openIdentity(current)
	if err != nil {
		return err
	}
	x, ok := id.(*age.X25519Identity)
	if !ok {
		return errors.New("private key is not an X25519 identity")
	}
	wrapped, err := wrapIdentity(x, next)
	if err != nil {
		return err
	}
	tmp := e.identityPath + ".new"
	if err := os.WriteFile(tmp, wrapped, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.Rename(tmp, e.identityPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing private key: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	rcpt, err := e.loadRecipient()
	if err != nil {
		return err
	}
	sealed, err := age.Encrypt(w, rcpt)
	if err != nil {
		return fmt.Errorf("starting age stream: %w", err)
	}
	if _, err := io.Copy(sealed, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := sealed.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) Unlock(passphrase string) (DecryptionContext, error) {
	id, err := e.openIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return &AgeDecryptionContext{identity: id}, nil
}

func (e *AgeEncryptor) IsConfigured() bool {
	return fileExists(e.recipientPath) && fileExists(e.identityPath)
}

// loadRecipient parses the recipient file once per process.
func (e *AgeEncryptor) loadRecipient() (age.Recipient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recipient != nil {
		return e.recipient, nil
	}
	raw, err := os.ReadFile(e.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("loading public key: %w", err)
	}
	rcpt, err := age.ParseX25519Recipient(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", e.recipientPath, err)
	}
	e.recipient = rcpt
	return rcpt, nil
}

func (e *AgeEncryptor) openIdentity(passphrase string) (age.Identity, error) {
	wrapped, err := os.ReadFile(e.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing passphrase: %w", err)
	}
	plain, err := age.Decrypt(bytes.NewReader(wrapped), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unwrapping private key: %w", err)
	}
	ids, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(ids) == 0 {
		return nil, errors.New("private key file holds no identity")
	}
	return ids[0], nil
}

func wrapIdentity(id *age.X25519Identity, passphrase string) ([]byte, error) {
	scrypt, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing passphrase: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, scrypt)
	if err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	if _, err := io.WriteString(w, id.String()+"\n"); err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("wrapping private key: %w", err)
	}
	return buf.Bytes(), nil
}

// writeKeyFile creates path exclusively in an owner-only directory.
func writeKeyFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AgeDecryptionContext opens working copies with an unwrapped identity.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ DecryptionContext = (*AgeDecryptionContext)(nil)

func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening age stream: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
