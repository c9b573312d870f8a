package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"cms-go/internal/config"
)

func setupAge(t *testing.T, passphrase string) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	e := NewAgeEncryptor(config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "working.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "working.key"),
	})
	if passphrase == "" {
		return e
	}
	if err := e.Setup(passphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return e
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()

	e := setupAge(t, "")
	if e.IsConfigured() {
		t.Fatal("IsConfigured() = true with no key files")
	}
	if err := e.Setup(""); err == nil {
		t.Error("Setup(\"\") should fail")
	}
	if err := e.Setup("first"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
	info, err := os.Stat(e.identityPath)
	if err != nil {
		t.Fatalf("Stat(private key) error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("private key mode = %v, want 0600", info.Mode().Perm())
	}
	if err := e.Setup("second"); err == nil {
		t.Error("second Setup() should refuse to replace the private key")
	}
	if _, err := e.Unlock("first"); err != nil {
		t.Errorf("Unlock() with original passphrase error = %v", err)
	}
}

func TestAgeEncryptor_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "post", input: []byte("---\ntitle: Hello\n---\n\nbody\n")},
		{name: "empty", input: []byte{}},
		{name: "binary", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large", input: bytes.Repeat([]byte("lorem ipsum "), 8000)},
	}
	e := setupAge(t, "pw")
	dec, err := e.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(e, tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(sealed, tt.input) {
				t.Error("sealed body contains the plaintext")
			}
			got, err := Open(dec, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("Open() returned %d bytes, want %d", len(got), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Failures(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		e := setupAge(t, "right")
		if _, err := e.Unlock("wrong"); err == nil {
			t.Error("Unlock() should fail")
		}
	})
	t.Run("seal without keys", func(t *testing.T) {
		if _, err := Seal(setupAge(t, ""), []byte("x")); err == nil {
			t.Error("Seal() should fail")
		}
	})
	t.Run("unlock without keys", func(t *testing.T) {
		if _, err := setupAge(t, "").Unlock("pw"); err == nil {
			t.Error("Unlock() should fail")
		}
	})
}

func TestAgeEncryptor_ChangePassphrase(t *testing.T) {
	t.Parallel()

	e := setupAge(t, "old")
	sealed, err := Seal(e, []byte("draft body"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if err := e.ChangePassphrase("wrong", "new"); err == nil {
		t.Fatal("ChangePassphrase() with wrong current passphrase should fail")
	}
	if err := e.ChangePassphrase("old", ""); err == nil {
		t.Fatal("ChangePassphrase() to empty should fail")
	}
	if err := e.ChangePassphrase("old", "new"); err != nil {
		t.Fatalf("ChangePassphrase() error = %v", err)
	}

	if _, err := e.Unlock("old"); err == nil {
		t.Error("Unlock(old) should fail after the change")
	}
	dec, err := e.Unlock("new")
	if err != nil {
		t.Fatalf("Unlock(new) error = %v", err)
	}
	got, err := Open(dec, sealed)
	if err != nil {
		t.Fatalf("Open() of body sealed before the change error = %v", err)
	}
	if string(got) != "draft body" {
		t.Errorf("Open() = %q", got)
	}
	if _, err := os.Stat(e.identityPath + ".new"); !os.IsNotExist(err) {
		t.Errorf("temporary key file left behind: %v", err)
	}
}
