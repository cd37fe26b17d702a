package db

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"namlong/internal/constants"
)

// ID prefixes of rows owned by this package and the blob store.
const (
	SessionIDPrefix = "ses"
	BlobIDPrefix    = "blb"
)

// GenerateID returns prefix_<hex> with constants.IDRandomBytes of entropy.
func GenerateID(prefix string) (string, error) {
	b := make([]byte, constants.IDRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating %s id: %w", prefix, err)
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
