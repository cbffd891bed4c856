package engine

import "errors"

// Every error below is fatal to the enclosing settlement call: the
// batch either settles completely or leaves no trace.
var (
	ErrMalformedInput           = errors.New("malformed input")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrTokenNotFound            = errors.New("token not found")
	ErrPriceRejected            = errors.New("clearing price rejected")
	ErrLimitPriceNotMet         = errors.New("limit price not met")
	ErrPartialFillNotAllowed    = errors.New("partial fill not allowed")
	ErrForbiddenTarget          = errors.New("interaction targets custody")
	ErrTransferFailed           = errors.New("transfer failed")
	ErrInsufficientFeeCollected = errors.New("insufficient fee collected")
	ErrFeeFactorTooLow          = errors.New("fee factor too low")
	ErrOrderExpired             = errors.New("order expired")
	ErrReentrantCall            = errors.New("reentrant settlement call")
	ErrUnauthorized             = errors.New("caller is not an authorized operator")
)
