// Package http serves the gateway API in front of the PBX.
//
// # Usage
//
//	api := http.NewHandler(http.Services{...}, http.WithLoginThrottle(throttle))
//	transport := http.NewHTTPTransport(api,
//	    http.WithAddr(":8080"),
//	    http.WithExtraHandler(adminHandler),
//	    http.WithHealthChecker(health),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST /api/v1/auth/login              password login, 200 or 502/503
//	POST /api/v1/auth/challenge          challenge plus auto-login, always 200
//	POST /api/v1/auth/token-login        login with a precomputed token
//	POST /api/v1/auth/logout             end a PBX session
//	POST /api/v1/sessions                store a cookie obtained elsewhere
//	GET  /api/v1/sessions/{user}         session record, 404 when absent
//	GET  /api/v1/sessions/{user}/cookie  cookie only
//	POST /api/v1/sessions/{user}/validate
//	POST /api/v1/recordings/fetch        cached download, base64 in JSON
//	POST /api/v1/recordings/stream       pass-through audio body
//	POST /api/v1/cdr                     call detail records
//	POST /api/v1/calls                   originate a call
//	GET  /health, GET /metrics
//
// # Errors
//
// Structured results (challenge, recording fetch, CDR) are always answered
// with 200 and a success flag. Raised errors map to status codes: invalid
// bodies 400, missing session 401, unknown user 404, rejected login or
// missing challenge 502, unreachable PBX 503, anything else 500.
//
// # Middleware Chain
//
//  1. MetricsMiddleware - duration and count per route
//  2. RequestIDMiddleware - X-Request-ID and request-scoped logger
//  3. RealIPMiddleware - client address for the login throttle
package http
