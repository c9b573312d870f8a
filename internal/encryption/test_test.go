package encryption

import (
	"bytes"
	"testing"
)

func TestTestEncryptor_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "markdown", input: []byte("---\ntitle: Hi\n---\n\nbody\n")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()
			sealed, err := Seal(e, tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if !bytes.HasPrefix(sealed, markerHeader) {
				t.Error("sealed body is not marked")
			}

			dec, err := e.Unlock("anything")
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			got, err := Open(dec, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("Open() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestTestEncryptor_Passphrases(t *testing.T) {
	t.Parallel()
	e := NewTestEncryptor()
	if err := e.Setup("first"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}
	if _, err := e.Unlock("wrong"); err == nil {
		t.Error("Unlock(wrong) should fail once a passphrase is set")
	}
	if err := e.ChangePassphrase("wrong", "second"); err == nil {
		t.Error("ChangePassphrase() with wrong current passphrase should fail")
	}
	if err := e.ChangePassphrase("first", "second"); err != nil {
		t.Fatalf("ChangePassphrase() error = %v", err)
	}
	if _, err := e.Unlock("first"); err == nil {
		t.Error("Unlock(first) should fail after the change")
	}
	if _, err := e.Unlock("second"); err != nil {
		t.Errorf("Unlock(second) error = %v", err)
	}
}

func TestTestEncryptor_OpenRejectsUnmarked(t *testing.T) {
	t.Parallel()

	for name, input := range map[string][]byte{
		"plaintext":      []byte("NOT_VALID_HEADER_data"),
		"short":          []byte("CMS"),
		"nothing at all": nil,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Open(markerContext{}, input); err == nil {
				t.Error("Open() should return error")
			}
		})
	}
}
