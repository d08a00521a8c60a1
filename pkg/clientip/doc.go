// Package clientip resolves the caller's address behind the API gateway and carries it in the
// request context so log records can include it.
//
//	r.Use(clientip.Middleware("X-Forwarded-For"))
//	log := logger.New(logger.WithContextExtractors(clientip.LogAttr))
//
// GetIP trusts the given headers as-is. Pass only headers the gateway sets itself.
package clientip
