package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by id/hash/key finds no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateFriendlyName is returned on account creation when the
	// friendly_name is already in use.
	ErrDuplicateFriendlyName = errors.New("store: friendly name already in use")

	// ErrDuplicateViewKey is returned on account creation when the view
	// key fingerprint collides with an existing account.
	ErrDuplicateViewKey = errors.New("store: view key already imported")

	// ErrDuplicateIdempotencyKey is returned when FundLocker.lock is
	// called with an idempotency_key already bound to a non-Pending
	// PendingTransaction and input selection succeeds, so the caller knows
	// a fresh key is required (minotari spec §7).
	ErrDuplicateIdempotencyKey = errors.New("store: idempotency key already consumed")

	// ErrInvalidBalanceChange is returned when a BalanceChange is
	// constructed without exactly one of CausedByOutputID/CausedByInputID
	// set, or without exactly one of BalanceCredit/BalanceDebit non-zero.
	ErrInvalidBalanceChange = errors.New("store: balance change must set exactly one cause and exactly one non-zero side")

	// ErrOutputNotLockable is returned when attempting to lock an output
	// that is not currently Unspent.
	ErrOutputNotLockable = errors.New("store: output is not unspent")
)
