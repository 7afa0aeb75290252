package utils

import (
	"crypto/md5"
	"fmt"
)

// Fingerprint returns a stable content hash of a query string, used as the
// deduplication key for the query history ledger.
func Fingerprint(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
