package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/indiehoy/discount-supervision/internal/handler"    // import the handlers that implement business logic
	"github.com/indiehoy/discount-supervision/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  Unauthenticated operations live under
// /v1/auth, while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (login, refresh).  Each of these
	// handlers is responsible for generating or exchanging tokens.
	g := e.Group("/v1/auth")
	// Register a POST endpoint to handle supervisor login at /v1/auth/login.
	g.POST("/login", a.Login)
	// Register a POST endpoint to refresh access tokens at /v1/auth/refresh. This rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Register a POST endpoint to log out using a refresh token.  The handler
	// accepts a JSON body containing a `refresh_token` and will invalidate
	// that token, or revoke all sessions when called with a bearer token.
	g.POST("/logout", a.Logout)

	// Create another group for routes that require a valid access token.  All
	// handlers registered on this group will execute the JWTAuth middleware
	// before being invoked.
	auth := e.Group("/v1")
	// Apply the JWTAuth middleware to the protected group using the provided secret.
	auth.Use(middleware.JWTAuth(jwtSecret))
	// Supervisors and admins are the only roles this service issues.
	auth.Use(middleware.RequireRole("SUPERVISOR", "ADMIN"))
	// Register a GET endpoint at /v1/me that returns the authenticated supervisor's information.
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated member-facing endpoints:
// the show catalog, per-show remaining slots, and discount request
// submission.  These routes apply no JWT or role middleware.  The
// response cache applies only here: supervision responses carry
// per-reviewer, frequently mutated state and sit behind auth, so they
// must never be served from a shared cache.
func RegisterPublic(e *echo.Echo, s *handler.ShowHandler, d *handler.DiscountHandler, cache echo.MiddlewareFunc) {
	// Expose the active show catalog with optional free-text filtering.
	e.GET("/v1/shows", s.ListShows, cache)
	// Remaining discount slots for one show.
	e.GET("/v1/shows/:id/remaining", s.GetShowRemaining, cache)
	// Submit a discount request.  The response is the supervision queue
	// item that now represents the request; no email is sent yet.
	e.POST("/v1/discounts", d.SubmitDiscount)
}

// RegisterSupervision registers the reviewer workflow under
// /v1/supervision.  Every route requires a valid access token carrying
// the SUPERVISOR or ADMIN role.
func RegisterSupervision(e *echo.Echo, h *handler.SupervisionHandler, jwtSecret string) {
	g := e.Group("/v1/supervision")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("SUPERVISOR", "ADMIN"))

	// Queue browsing and dashboard aggregates.  The static /queue/stats
	// segment takes priority over the :id parameter in Echo's router.
	g.GET("/queue", h.ListQueue)
	g.GET("/queue/stats", h.Stats)
	g.GET("/queue/:id", h.GetQueueItem)

	// Reviewer actions.  Approve/reject/edit are legal only while the
	// item is pending; send moves it to the terminal state; notes stay
	// writable afterwards.
	g.POST("/queue/:id/approve", h.Approve)
	g.POST("/queue/:id/reject", h.Reject)
	g.PUT("/queue/:id/email", h.EditEmail)
	g.POST("/queue/:id/send", h.Send)
	g.POST("/queue/:id/notes", h.AddNote)
}
