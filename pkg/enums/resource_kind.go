package enums

import "fmt"

// ResourceKind separates client galleries from proposal projects.
type ResourceKind string

const (
	ResourceKindGallery ResourceKind = "gallery"
	ResourceKindProject ResourceKind = "project"
)

var validResourceKinds = []ResourceKind{
	ResourceKindGallery,
	ResourceKindProject,
}

// String returns the literal string for the kind.
func (r ResourceKind) String() string {
	return string(r)
}

// IsValid reports whether the kind is known.
func (r ResourceKind) IsValid() bool {
	for _, candidate := range validResourceKinds {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseResourceKind converts raw input into a ResourceKind.
func ParseResourceKind(value string) (ResourceKind, error) {
	for _, candidate := range validResourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resource kind %q", value)
}
