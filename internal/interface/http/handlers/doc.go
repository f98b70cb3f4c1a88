// Package handlers contains the reusable pieces of the HTTP interface:
// health checks, authentication and generic middleware.
//
// # Health Checks
//
// Checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewOptionalCheck(handlers.NewPingCheck(cache)))
//
// An optional check marks the service unhealthy but still ready.
//
// # Authentication
//
// Learner routes take an HS256 bearer token whose subject is the learner id.
// Administrative routes take a key checked against a configured bcrypt hash.
package handlers
