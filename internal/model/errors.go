package model

import "errors"

// Kind tags every failure the analysis core can produce. Callers branch on
// the kind; the message is for humans.
type Kind string

const (
	KindOutOfOrderTimestamp Kind = "OUT_OF_ORDER_TIMESTAMP"
	KindInsufficientData    Kind = "INSUFFICIENT_DATA"
	KindInvalidQuantity     Kind = "INVALID_QUANTITY"
	KindInvalidPrice        Kind = "INVALID_PRICE"
	KindRiskExceeded        Kind = "RISK_EXCEEDED"
)

// Error is a tagged failure. The core returns these directly — it never
// wraps them in generic errors, logs them, or retries.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewError builds a tagged error.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf extracts the Kind from an error chain. Returns "" for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
