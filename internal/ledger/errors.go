package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when the account id does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrQuoteUnavailable is returned when no current price can be obtained
	// for the symbol. No state changes when this happens.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrInsufficientFunds is returned for a BUY whose cost exceeds the
	// account's cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientQuantity is returned for a SELL of more shares than the
	// account holds.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrInvalidOrder is returned for malformed trade requests (bad side,
	// non-positive quantity, empty symbol).
	ErrInvalidOrder = errors.New("invalid order")
)
