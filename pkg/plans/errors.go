package plans

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrPlanUnknown              = errors.New("external price is not mapped to any plan")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
	ErrNoFreePlan               = errors.New("catalog must contain exactly one free plan")
)
