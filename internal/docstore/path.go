package docstore

import (
	"fmt"
	"strings"
)

// CollectionPath joins segments into a collection path, e.g.
// CollectionPath("projects", id, "todos").
func CollectionPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidateCollection checks that path names a collection: an odd number of
// non-empty segments.
func ValidateCollection(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty collection path", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}
	if len(segments)%2 == 0 {
		return fmt.Errorf("%w: %q is a document path", ErrInvalidPath, path)
	}
	return nil
}

// ValidateID checks that id can address a document.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidPath)
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("%w: document id %q contains '/'", ErrInvalidPath, id)
	}
	return nil
}

func validateDocument(collection, id string) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	return ValidateID(id)
}

func documentPath(collection, id string) string {
	return collection + "/" + id
}
