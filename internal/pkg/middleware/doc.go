// Package middleware provides HTTP middleware components for the smart search
// server.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - APIKey: Shared-secret authentication for mutating endpoints
//   - RequestID: Assigns or propagates X-Request-ID and X-Chat-ID
//   - CORS: Permissive CORS headers for browser-based admin pages
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.RequestID(middleware.CORS(rl.Middleware(handler)))
package middleware
