package quota

import "errors"

var (
	ErrQuotaExceeded  = errors.New("monthly quota exceeded")
	ErrInvalidContext = errors.New("invalid quota context")
)
