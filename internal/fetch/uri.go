package fetch

import (
	"fmt"
	"path"
	"strings"
)

// Location is a parsed scheme://container/prefix URI.
type Location struct {
	Scheme    string
	Container string
	Prefix    string
}

func (l Location) String() string {
	if l.Prefix == "" {
		return l.Scheme + "://" + l.Container
	}
	return l.Scheme + "://" + l.Container + "/" + l.Prefix
}

// ParseURI splits uri into scheme, container (bucket) and object prefix.
// A missing scheme or container is ErrInvalidURI.
func ParseURI(uri string) (Location, error) {
	uri = strings.TrimSpace(uri)
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return Location{}, fmt.Errorf("%w: %q: missing scheme (expected scheme://container/prefix)", ErrInvalidURI, uri)
	}
	container, prefix, _ := strings.Cut(rest, "/")
	if container == "" {
		return Location{}, fmt.Errorf("%w: %q: missing container", ErrInvalidURI, uri)
	}
	return Location{Scheme: strings.ToLower(scheme), Container: container, Prefix: prefix}, nil
}

// relativeKey maps an object key to its path below the prefix. It returns
// false for keys that only share a name prefix with a sibling folder
// (prefix "m/blip" must not pick up "m/blip_v2/config.json") and for
// folder placeholder objects.
func relativeKey(prefix, key string) (string, bool) {
	if strings.HasSuffix(key, "/") {
		return "", false
	}
	if prefix == "" {
		return key, true
	}
	if key == prefix {
		// The URI named a single object.
		return path.Base(key), true
	}
	rest := strings.TrimPrefix(key, prefix)
	if rest == key {
		return "", false
	}
	if !strings.HasSuffix(prefix, "/") && !strings.HasPrefix(rest, "/") {
		return "", false
	}
	rest = strings.TrimLeft(rest, "/")
	return rest, rest != ""
}
