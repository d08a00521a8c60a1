// Package requestid tags every HTTP request with an id that flows into logs.
//
// Mount Middleware first in the router and register LogAttr with the logger so records emitted
// with the request context carry request_id:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LogAttr))
//	r.Use(requestid.Middleware)
package requestid
