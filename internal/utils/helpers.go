package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/joseph-ayodele/receipt-sync/constants"
)

// ParseYMD parses a YYYY-MM-DD day as midnight UTC.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation(constants.ReceiptDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
