package telemetry

import "errors"

var ErrSetup = errors.New("telemetry: failed to set up tracing")
