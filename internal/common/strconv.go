package common

import (
	"strconv"
	"strings"
)

// AtoiDefault parses value, returning def when it is blank or malformed.
func AtoiDefault(value string, def int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

// ParseID parses a positive bill, payment or party identifier.
func ParseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest(name+" must be a positive integer", err)
	}
	return id, nil
}
