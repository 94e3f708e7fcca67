package service

import "errors"

// ErrValidation marks malformed input (empty clientID/resource, negative
// or non-finite cost) — surfaced to the caller immediately, never reaches
// storage. Per spec.md §7.
var ErrValidation = errors.New("service: validation error")

// ErrStorageTransient marks a CAS attempt-loop exhaustion or a storage
// backend reporting a connectivity failure, mapped to the fail-open/
// fail-closed policy by Check. Per spec.md §7.
var ErrStorageTransient = errors.New("service: storage transient error")
