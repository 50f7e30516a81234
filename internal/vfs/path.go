package vfs

import (
	"strings"

	"github.com/conneroisu/litterbox/internal/errors"
)

// Scheme is the URI scheme the host maps onto virtual paths.
const Scheme = "sandbox"

// splitPath turns an absolute virtual path into its segments. "." and ".."
// are ordinary names and empty segments are ignored, so "/a//b/" is ["a" "b"].
func splitPath(p string) ([]string, error) {
	if !strings.HasPrefix(p, "/") {
		return nil, errors.FileNotFound(p).WithContext("reason", "path must be absolute")
	}

	raw := strings.Split(p, "/")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	return segments, nil
}

// joinPath is the inverse of splitPath.
func joinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// hasPathPrefix reports whether prefix names path itself or an ancestor.
func hasPathPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}

	return true
}

// Clean normalizes a virtual path the way the store resolves it.
func Clean(p string) (string, error) {
	segments, err := splitPath(p)
	if err != nil {
		return "", err
	}

	return joinPath(segments), nil
}

// Dir returns the parent path of p ("/" for top-level entries and the root).
func Dir(p string) string {
	segments, err := splitPath(p)
	if err != nil || len(segments) == 0 {
		return "/"
	}

	return joinPath(segments[:len(segments)-1])
}

// Base returns the last segment of p, or "/" for the root.
func Base(p string) string {
	segments, err := splitPath(p)
	if err != nil || len(segments) == 0 {
		return "/"
	}

	return segments[len(segments)-1]
}

// Join appends name segments to a virtual directory path.
func Join(dir string, names ...string) string {
	segments, err := splitPath(dir)
	if err != nil {
		segments = nil
	}
	for _, name := range names {
		for _, seg := range strings.Split(name, "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}

	return joinPath(segments)
}

// ParseURI maps "sandbox:/a/b" (or "sandbox:///a/b") onto "/a/b".
func ParseURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, Scheme+":")
	if !ok {
		return "", errors.NewValidationError("invalid_uri", "expected scheme "+Scheme+": in "+uri)
	}
	rest = strings.TrimPrefix(rest, "//")

	return Clean("/" + strings.TrimLeft(rest, "/"))
}

// FormatURI maps "/a/b" onto "sandbox:/a/b".
func FormatURI(p string) string {
	cleaned, err := Clean(p)
	if err != nil {
		cleaned = "/"
	}

	return Scheme + ":" + cleaned
}
