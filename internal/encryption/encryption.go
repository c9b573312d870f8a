// Package encryption seals working copies at rest.
package encryption

import (
	"bytes"
	"io"
)

// Encryptor encrypts with the public key alone. Decryption needs the private
// key, which Unlock opens with the operator's passphrase.
type Encryptor interface {
	// Setup generates a key pair, stores the public key in plaintext and
	// the private key encrypted with passphrase. Called by `cms keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// ChangePassphrase rewraps the private key. Data already encrypted stays
	// readable.
	ChangePassphrase(current, next string) error

	// Unlock decrypts the private key and returns a DecryptionContext that
	// lives for the rest of the process. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}

// Seal encrypts a whole body.
func Seal(e Encryptor, plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(plain), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Open decrypts a whole body.
func Open(d DecryptionContext, sealed []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Decrypt(bytes.NewReader(sealed), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
