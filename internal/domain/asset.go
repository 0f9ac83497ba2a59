package domain

import "time"

// DefaultAssetContentType is served for assets stored without a content type.
const DefaultAssetContentType = "text/plain"

// Asset is a static file stored verbatim under a path.
type Asset struct {
	Path        string
	Data        []byte
	ContentType string
	UpdatedAt   time.Time
}

// ServedContentType returns the stored content type or the default.
func (a *Asset) ServedContentType() string {
	if a.ContentType == "" {
		return DefaultAssetContentType
	}
	return a.ContentType
}
