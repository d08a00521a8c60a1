// Package logger builds the service's *slog.Logger and keeps attribute names consistent.
//
// New creates a JSON or text logger from functional options. The handler is wrapped in a
// decorator that runs ContextExtractor callbacks on every record, which is how request-scoped
// values such as the request id or the authenticated user end up in each log line without being
// threaded through every call.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "meterd"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "quota committed",
//		logger.UserID(userID),
//		logger.PlanID(plan.ID),
//	)
//
// Attribute helpers return an empty slog.Attr for nil or empty input, so they can be passed
// unconditionally: log.Warn("cancel failed", logger.Error(err)).
package logger
