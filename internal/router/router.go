// Package router wires handlers to routes and applies the guard chain.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/studyhall/studyhall-api/internal/handler"
	"github.com/studyhall/studyhall-api/internal/middleware"
)

// Register mounts every route on the provided Echo instance. limiter
// throttles the credential endpoints; gate supplies authentication and
// the layered precondition guards.
func Register(e *echo.Echo, a *handler.AuthHandler, o *handler.OAuthHandler, gate *middleware.Gate, limiter echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	// Credential endpoints: no session required, rate limited.
	pub := e.Group("/v1/auth")
	pub.POST("/register", a.Register, limiter)
	pub.POST("/login", a.Login, limiter)
	pub.POST("/recovery", a.RecoveryLogin, limiter)
	pub.POST("/refresh", a.Refresh)
	// Logout works with a refresh token in the body, or revokes every
	// session when only a bearer token is present.
	pub.POST("/logout", a.Logout, gate.OptionalAuth)
	pub.POST("/verify-email", a.VerifyEmail)
	pub.POST("/password-reset/request", a.RequestPasswordReset, limiter)
	pub.POST("/password-reset", a.ConfirmPasswordReset)

	// Provider round trip; CSRF state rides in cookies.
	pub.GET("/google", o.Start)
	pub.GET("/google/callback", o.Callback)

	// Everything below requires a valid access token and an active account.
	authed := e.Group("/v1", gate.Authenticate)
	authed.GET("/me", a.Me)
	authed.GET("/me/sessions", a.ListSessions)
	authed.POST("/me/consent", a.GrantConsent)
	authed.DELETE("/me", a.DeleteAccount)
	authed.POST("/auth/verify-email/request", a.RequestEmailVerification)

	// Two-factor management wants a verified address on file before a
	// secret is provisioned.
	twofa := authed.Group("/2fa", middleware.RequireVerifiedEmail())
	twofa.POST("/setup", a.Setup2FA)
	twofa.POST("/verify", a.Verify2FA)
	twofa.POST("/disable", a.Disable2FA)

	admin := authed.Group("/admin", middleware.RequireAdmin())
	admin.GET("/users", a.AdminListUsers)
	admin.POST("/users/:id/deactivate", a.AdminDeactivateUser)
}
