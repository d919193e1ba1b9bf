package core

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// Identity derives the vector-store key for an invocation.
//
// The first 16 bytes of the invocation's SHA-256 digest are used as the name of a
// UUIDv5 in the OID namespace, so the result is a valid point id for any store
// that requires UUIDs and is stable across processes and machines.
func Identity(invocation string) string {
	sum := sha256.Sum256([]byte(invocation))
	return uuid.NewSHA1(uuid.NameSpaceOID, sum[:16]).String()
}
