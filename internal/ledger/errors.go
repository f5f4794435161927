package ledger

import (
	"errors"

	"github.com/greentrace/ledger/internal/safemath"
)

// Failure conditions shared by all ledger operations. Hosts map these onto
// their transport of choice; the HTTP layer translates them to status codes.
var (
	// ErrNotAuthorized is returned when the caller lacks the role the
	// operation requires (authority-only calls, unverified participants).
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned on duplicate registration, either of a
	// participant identity or of a product qr key.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidAmount is returned when a quantity argument is zero.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidInput is returned when a required field is empty or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProductNotRegistered is returned when an operation references a
	// product id that was never registered.
	ErrProductNotRegistered = errors.New("product not registered")

	// ErrCarbonDataNotVerified is returned when a purchase references a
	// product whose manufacturing data the authority has not yet approved.
	ErrCarbonDataNotVerified = errors.New("carbon data not verified")

	// ErrPaused is returned by participant-initiated mutations while the
	// ledger emergency switch is on.
	ErrPaused = errors.New("ledger is paused")

	// ErrRateLimitExceeded is returned when a caller exhausts its operation
	// allowance for the current rate window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInsufficientBalance is returned by the payment subsystem when a
	// transfer exceeds the payer's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidParticipant is returned for an unknown participant kind tag.
	ErrInvalidParticipant = errors.New("invalid participant kind")

	// ErrOverflow and ErrUnderflow surface checked-arithmetic failures so
	// hosts can report them without importing the arithmetic package.
	ErrOverflow  = safemath.ErrOverflow
	ErrUnderflow = safemath.ErrUnderflow
)
