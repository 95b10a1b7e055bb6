package domain

import "errors"

// ErrNotFound is wrapped by store lookups that match no row.
var ErrNotFound = errors.New("not found")
