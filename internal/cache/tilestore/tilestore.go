// Package tilestore implements cache.TileStore on Redis and on a local directory tree.
package tilestore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ETag is the xxhash64 of the payload, hex encoded.
func ETag(payload []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(payload))
}

// PublicURL joins the configured public base with an object key. With no base the
// key itself is returned as a relative URL.
func PublicURL(base, objectKey string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return "/" + objectKey
	}
	u, err := url.JoinPath(base, objectKey)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + objectKey
	}
	return u
}
