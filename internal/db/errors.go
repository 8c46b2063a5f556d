package db

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned when registering an already-taken username.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrInsufficientFunds is returned when a trade would drive cash negative.
	ErrInsufficientFunds = errors.New("not enough cash")

	// ErrInsufficientShares is returned when selling more shares than held.
	ErrInsufficientShares = errors.New("not enough shares")

	// ErrConcurrencyConflict is returned after the bounded retries of a trade
	// transaction are exhausted by serialization failures.
	ErrConcurrencyConflict = errors.New("conflicting concurrent trade, try again")
)
