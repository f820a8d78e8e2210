package router

import (
	"context"
	"net/http"
	"strings"

	"lms/internal/api/v1/handler"
	"lms/internal/bootstrap"
	"lms/internal/config"
	"lms/internal/database"
	"lms/internal/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New opens the database, wires every service and returns the root handler.
// The returned function releases the database and Pub/Sub clients.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().
		Str("environment", cfg.Environment).
		Str("catalog_source", cfg.CatalogSource).
		Msg("Initializing router")

	// 1. Open DB connection (connection pooling)
	db, closeDB, err := database.Open(ctx, cfg.DBConnectionString, cfg.Environment, logger)
	if err != nil {
		return nil, nil, err
	}

	// 2. Repositories & services
	svc, closeSvc, err := bootstrap.Build(ctx, cfg, db, logger)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	cleanup := func() {
		closeSvc()
		closeDB()
	}

	// 3. Validator & handlers
	validate := validator.New(validator.WithRequiredStructEnabled())

	userHandler := handler.NewUserHandler(svc.Users, validate, logger)
	courseHandler := handler.NewCourseHandler(svc.Courses, validate, logger)
	learningHandler := handler.NewLearningHandler(svc.Progress, svc.Quiz, svc.Submissions, svc.Certificates, validate, logger)
	enrollmentHandler := handler.NewEnrollmentHandler(svc.Enrollment, svc.Transactions, validate, logger)
	dlqHandler := handler.NewDLQHandler(svc.DLQ, logger)

	// 4. Middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, logger)
	requireAdmin := middleware.RequireAdmin(svc.Users, logger)
	adminMiddleware := func(next http.Handler) http.Handler {
		return authMiddleware(requireAdmin(next))
	}
	isLocalDev := cfg.PubSubEmulatorHost != ""
	pubsubAuthMiddleware := middleware.PubSubAuthMiddleware(isLocalDev, cfg.DLQEndpointURL, cfg.PubSubPushServiceAccountEmail, logger)

	// 5. API v1 routes
	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	courseHandler.RegisterRoutes(apiV1Mux, adminMiddleware)
	learningHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	enrollmentHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)
	dlqHandler.RegisterRoutes(apiV1Mux, pubsubAuthMiddleware)
	if svc.Stripe != nil {
		apiV1Mux.HandleFunc("POST /stripe/webhook", svc.Stripe.HandleWebhook)
	}
	apiV1Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Redirect /api/* to /v1/* for backward compatibility
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/")
		http.Redirect(w, r, "/v1/"+rest, http.StatusMovedPermanently)
	})

	// 6. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), cleanup, nil
}
