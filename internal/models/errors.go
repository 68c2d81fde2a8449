package models

import "errors"

// Domain error taxonomy. Services wrap these with fmt.Errorf("...: %w")
// and handlers map them to HTTP status codes with errors.Is.
var (
	// ErrNotFound covers absent invite codes, usernames and documents.
	// It is also deliberately returned when a friend request is sent to
	// a user who has blocked the sender, so that block status is not
	// distinguishable from a nonexistent user.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is an authorization violation, e.g. an owner-only
	// operation attempted by a non-owner.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict covers duplicate-self operations: already friends,
	// already blocked, pending request already exists, self-send.
	ErrConflict = errors.New("conflict")

	// ErrUnsupported marks operations with no defined behavior yet,
	// such as an owner leaving a circle without transferring ownership.
	ErrUnsupported = errors.New("unsupported operation")
)
