package models

import "errors"

// ErrNotFound is returned by store implementations when a lookup matches
// no record for the requesting owner.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned by store implementations when an insert or
// update violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")
