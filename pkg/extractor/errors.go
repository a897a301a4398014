package extractor

import "errors"

// Every error returned by Extract means "no transaction in this email".
// Callers processing a mailbox skip the email and carry on.
var (
	// ErrUnrecognizedSender is returned when no bank claims the sender address.
	ErrUnrecognizedSender = errors.New("unrecognized sender")
	// ErrNoPatternMatch is returned when the bank's grammar finds no transaction.
	ErrNoPatternMatch = errors.New("no pattern match")
	// ErrInvalidAmount is returned when a pattern matched but its amount is not a positive number.
	ErrInvalidAmount = errors.New("invalid amount")
)
