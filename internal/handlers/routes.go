package handlers

import (
	"net/http"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	auth := AuthHandler{
		Users:           deps.Users,
		Sessions:        deps.Sessions,
		Limiter:         deps.AuthLimiter,
		StartingBalance: deps.StartingBalance,
		NowFunc:         deps.NowFunc,
	}
	videos := VideoHandler{
		Videos:   deps.Videos,
		Access:   deps.Access,
		Storage:  deps.Storage,
		MaxBytes: deps.MaxUploadBytes,
		NowFunc:  deps.NowFunc,
	}
	transfers := TransferHandler{Engine: deps.Transfers, Limiter: deps.TransferLimiter}
	users := UserHandler{Users: deps.Users, Videos: deps.Videos, Ledger: deps.Ledger}

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if deps.Authenticator != nil {
		requireAccount := middleware.RequireAccount(deps.Authenticator)
		protect = func(h http.HandlerFunc) http.Handler { return requireAccount(h) }
	}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/api/v1/auth/login", auth.Login)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", auth.Logout)

	mux.Handle("/api/v1/videos", protect(videos.Collection))
	mux.Handle("/api/v1/videos/{id}", protect(videos.Get))
	mux.Handle("/api/v1/videos/{id}/purchase", protect(transfers.Purchase))
	mux.Handle("/api/v1/videos/{id}/gift", protect(transfers.Gift))

	mux.Handle("/api/v1/users/me", protect(users.Me))
	mux.Handle("/api/v1/users/me/videos", protect(users.MyVideos))
	mux.Handle("/api/v1/users/me/purchases", protect(users.Purchases))
	mux.Handle("/api/v1/users/me/gifts", protect(users.Gifts))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	DB            Pinger
	Users         UserStore
	Sessions      SessionManager
	Authenticator middleware.TokenAuthenticator
	Videos        VideoStore
	Ledger        LedgerStore
	Storage       ObjectStorage
	Access        AccessResolver
	Transfers     TransferEngine

	AuthLimiter     RateLimiter
	TransferLimiter RateLimiter

	StartingBalance int64
	MaxUploadBytes  int64
	NowFunc         func() time.Time
}
