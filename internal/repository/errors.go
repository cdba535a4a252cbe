package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateSession is returned when a device session insert collides
	// with the (user_id, device_fingerprint) unique key outside the upsert path
	ErrDuplicateSession = errors.New("device session already exists")
)
