package enums

import "fmt"

// MediaItemKind classifies individual assets inside a resource.
type MediaItemKind string

const (
	MediaItemKindImage    MediaItemKind = "image"
	MediaItemKindVideo    MediaItemKind = "video"
	MediaItemKindDocument MediaItemKind = "document"
)

var validMediaItemKinds = []MediaItemKind{
	MediaItemKindImage,
	MediaItemKindVideo,
	MediaItemKindDocument,
}

func (m MediaItemKind) String() string {
	return string(m)
}

func (m MediaItemKind) IsValid() bool {
	for _, candidate := range validMediaItemKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMediaItemKind converts raw input into a MediaItemKind.
func ParseMediaItemKind(value string) (MediaItemKind, error) {
	for _, candidate := range validMediaItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media item kind %q", value)
}
