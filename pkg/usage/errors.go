package usage

import "errors"

var (
	ErrRecordNotFound  = errors.New("usage record not found")
	ErrRecordExists    = errors.New("usage record already exists")
	ErrLimitReached    = errors.New("usage limit reached")
	ErrFailedToLoad    = errors.New("failed to load usage record")
	ErrFailedToSave    = errors.New("failed to save usage record")
	ErrInvalidMonthKey = errors.New("invalid usage month key")
	ErrMissingUserID   = errors.New("usage: user id is required")
)
