package model

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// ContentHash returns the hex encoded xxhash64 of content.
// Empty content produces an empty hash.
func ContentHash(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(content), 16)
}
