package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	batchBoundaryPrefix     = "batch_"
	changesetBoundaryPrefix = "changeset_"
)

var (
	batchBoundaryPattern     = regexp.MustCompile(`^batch_[a-zA-Z0-9]{24}$`)
	changesetBoundaryPattern = regexp.MustCompile(`^changeset_[a-zA-Z0-9]{24}$`)

	// RFC 2046 boundary characters, 1 to 70 long, not ending in a space.
	boundaryPattern = regexp.MustCompile(`^[0-9A-Za-z'()+_,\-./:=? ]{0,69}[0-9A-Za-z'()+_,\-./:=?]$`)
)

// NewBatchBoundary generates a multipart boundary for a $batch response
// with the "batch_" prefix followed by 24 random alphanumeric characters.
func NewBatchBoundary() string {
	return batchBoundaryPrefix + randomAlphanumeric(idLength)
}

// NewChangesetBoundary generates a multipart boundary for a changeset
// inside a $batch response.
func NewChangesetBoundary() string {
	return changesetBoundaryPrefix + randomAlphanumeric(idLength)
}

// IsGeneratedBatchBoundary reports whether b was produced by NewBatchBoundary.
func IsGeneratedBatchBoundary(b string) bool {
	return batchBoundaryPattern.MatchString(b)
}

// IsGeneratedChangesetBoundary reports whether b was produced by
// NewChangesetBoundary.
func IsGeneratedChangesetBoundary(b string) bool {
	return changesetBoundaryPattern.MatchString(b)
}

// ValidBoundary checks whether b is a legal multipart boundary.
func ValidBoundary(b string) bool {
	return boundaryPattern.MatchString(b)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
