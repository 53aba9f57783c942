package storage

import (
	"fmt"
	"strings"
)

// Scheme is the locator prefix of object storage sources.
const Scheme = "s3://"

// IsRemote reports whether locator points into object storage.
func IsRemote(locator string) bool {
	return strings.HasPrefix(strings.ToLower(locator), Scheme)
}

// ParseLocator splits "s3://bucket/path/to/key" into bucket and object name.
func ParseLocator(locator string) (bucket, object string, err error) {
	if !IsRemote(locator) {
		return "", "", fmt.Errorf("not an object storage locator: %q", locator)
	}
	rest := locator[len(Scheme):]
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("object storage locator %q must be s3://bucket/key", locator)
	}
	return bucket, object, nil
}

// ObjectPath joins a prefix and name segments into an object name.
func ObjectPath(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
