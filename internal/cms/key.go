package cms

import (
	"fmt"
	"strings"
)

const keySeparator = ":"

// WorkingKey addresses a working copy in the working store.
// It serializes as "{tag}:{author}:{filename}".
type WorkingKey struct {
	Stage    Stage
	Author   string
	Filename string
}

// NormalizeAuthor lower-cases and trims an author identity so the same person
// never produces two key namespaces.
func NormalizeAuthor(author string) string {
	return strings.ToLower(strings.TrimSpace(author))
}

// NewWorkingKey builds a validated key with a normalized author.
func NewWorkingKey(stage Stage, author, filename string) (WorkingKey, error) {
	k := WorkingKey{Stage: stage, Author: NormalizeAuthor(author), Filename: strings.TrimSpace(filename)}
	if err := k.Validate(); err != nil {
		return WorkingKey{}, err
	}
	return k, nil
}

// Validate checks that the key can be serialized and parsed back unchanged.
func (k WorkingKey) Validate() error {
	if !k.Stage.IsWorking() {
		return fmt.Errorf("%w: stage %s has no working copy", ErrInvalidInput, k.Stage)
	}
	if k.Author == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	if strings.Contains(k.Author, keySeparator) {
		return fmt.Errorf("%w: author %q contains %q", ErrInvalidInput, k.Author, keySeparator)
	}
	if err := ValidateFilename(k.Filename); err != nil {
		return err
	}
	return nil
}

// ValidateFilename rejects names that cannot be used as a single path element.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	case name == "." || name == "..":
		return fmt.Errorf("%w: invalid filename %q", ErrInvalidInput, name)
	case strings.ContainsAny(name, "/\\\n\r"):
		return fmt.Errorf("%w: filename %q must not contain path separators", ErrInvalidInput, name)
	}
	return nil
}

// String serializes the key.
func (k WorkingKey) String() string {
	return k.Stage.Tag() + keySeparator + k.Author + keySeparator + k.Filename
}

// WithStage returns the key for the same item at another working stage.
func (k WorkingKey) WithStage(s Stage) WorkingKey {
	k.Stage = s
	return k
}

// ParseWorkingKey parses a serialized key. The filename may itself contain ':'.
func ParseWorkingKey(raw string) (WorkingKey, error) {
	parts := strings.SplitN(raw, keySeparator, 3)
	if len(parts) != 3 {
		return WorkingKey{}, fmt.Errorf("%w: malformed working key %q", ErrInvalidInput, raw)
	}
	stage, ok := stageFromTag(parts[0])
	if !ok {
		return WorkingKey{}, fmt.Errorf("%w: unknown stage tag %q", ErrInvalidInput, parts[0])
	}
	k := WorkingKey{Stage: stage, Author: parts[1], Filename: parts[2]}
	if k.Author != NormalizeAuthor(k.Author) {
		return WorkingKey{}, fmt.Errorf("%w: author in key %q is not normalized", ErrInvalidInput, raw)
	}
	if err := k.Validate(); err != nil {
		return WorkingKey{}, err
	}
	return k, nil
}

// KeyPrefix returns the List prefix for a stage, optionally narrowed to one author.
func KeyPrefix(stage Stage, author string) string {
	prefix := stage.Tag() + keySeparator
	if a := NormalizeAuthor(author); a != "" {
		prefix += a + keySeparator
	}
	return prefix
}
