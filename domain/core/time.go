package core

import "time"

// Timestamp is an RFC3339 UTC timestamp used on serialized records
type Timestamp string

// Now returns the current UTC timestamp
func Now() Timestamp {
	return Timestamp(time.Now().UTC().Format(time.RFC3339))
}

// String returns the string representation
func (t Timestamp) String() string { return string(t) }
