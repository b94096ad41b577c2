package rest

import (
	"net/http"
	"time"

	"github.com/societyhub/registration-service/internal/domain"
	"github.com/societyhub/registration-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Cache    domain.CacheRepository
	Handler  *Handler
	Verifier security.AccessTokenVerifier

	JWTIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RateLimitEnabled {
		r.Use(RateLimitMiddleware(d.Cache, RateLimitOptions{Limit: d.RateLimit, Window: d.RateLimitWindow}))
	}
	r.Use(SecurityHeaders)

	r.Route("/api/v1", func(r chi.Router) {
		// Public: anyone holding the QR link may register or check capacity.
		r.Post("/events/{eventID}/registrations", d.Handler.Register)
		r.Get("/events/{eventID}", d.Handler.GetEvent)
		r.Get("/events/{eventID}/availability", d.Handler.Availability)
		r.Get("/events/{eventID}/registration-link", d.Handler.RegistrationLink)

		// Organizer-only reads.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.JWTIssuer}))
			r.Get("/events/{eventID}/participants", d.Handler.Participants)
		})
	})

	return r
}
