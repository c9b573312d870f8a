package workingstore

import (
	"fmt"

	"cms-go/internal/cms"
)

func notFound(key string) error {
	return fmt.Errorf("working copy %q: %w", key, cms.ErrNotFound)
}
