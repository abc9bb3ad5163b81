// Package leafhash computes the short content hashes used to identify
// files and file leaves on the upload server.
package leafhash

import (
	"crypto/sha1"
	"encoding/base32"
	"strconv"
)

// ShortHash returns the base32-encoded SHA-1 digest of the input bytes.
// Same bytes always yield the same string.
func ShortHash(b []byte) string {
	digest := sha1.Sum(b)
	return base32.StdEncoding.EncodeToString(digest[:])
}

// QuickID returns the content fingerprint used as the session resume key:
// the short hash of the decimal file size concatenated with the first chunk
// of the file. It is a resume hint, not a whole-file identity.
func QuickID(size int64, firstChunk []byte) string {
	buf := make([]byte, 0, len(firstChunk)+20)
	buf = strconv.AppendInt(buf, size, 10)
	buf = append(buf, firstChunk...)
	return ShortHash(buf)
}
