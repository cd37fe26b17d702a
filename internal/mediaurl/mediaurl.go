// Package mediaurl builds and parses the public URLs of uploaded chat images.
package mediaurl

import (
	"net/url"
	"strings"
)

const (
	PathPrefix    = "/media/"
	previewPath   = "/preview"
	imageIDPrefix = "blb_"
)

// Image is the URL of the original upload. An empty baseURL yields a
// site-relative path.
func Image(baseURL, imageID string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + PathPrefix + imageID
}

func ImagePreview(baseURL, imageID string) string {
	return Image(baseURL, imageID) + previewPath
}

// ParseImageID extracts the image id from a URL built by Image. Preview URLs
// and foreign paths are rejected.
func ParseImageID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	id, ok := strings.CutPrefix(u.Path, PathPrefix)
	if !ok || !strings.HasPrefix(id, imageIDPrefix) || len(id) == len(imageIDPrefix) || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
