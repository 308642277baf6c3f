// Package repository implements database/sql persistence for users,
// refresh tokens, recovery codes and temporary tokens. Sentinel errors let
// handlers map storage outcomes to HTTP responses without inspecting
// driver errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert collides with the unique
// email index.
var ErrEmailExists = errors.New("email already exists")

// ErrAlreadyRevoked is returned by guarded revocation updates when the
// target row was revoked by a concurrent request. Rotation treats this as
// fail-closed: only the request that actually flipped the row may issue a
// replacement pair.
var ErrAlreadyRevoked = errors.New("token already revoked")
