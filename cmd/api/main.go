package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/askdoubt/manim-tutor-api/pkg/config"
	"github.com/askdoubt/manim-tutor-api/pkg/db"
	"github.com/askdoubt/manim-tutor-api/pkg/db/queries"
	"github.com/askdoubt/manim-tutor-api/pkg/handlers"
	"github.com/askdoubt/manim-tutor-api/pkg/llm"
	"github.com/askdoubt/manim-tutor-api/pkg/middleware"
	"github.com/askdoubt/manim-tutor-api/pkg/pipeline"
	"github.com/askdoubt/manim-tutor-api/pkg/renderer"
	"github.com/askdoubt/manim-tutor-api/pkg/services"
)

func main() {
	log.SetOutput(gin.DefaultWriter)
	log.SetLevel(log.InfoLevel)
	log.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
	log.Info("Starting Manim Tutor API...")

	cfg := config.LoadConfig()

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close(conn)
	store := queries.New(conn)

	gemini, err := llm.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini client: %v", err)
	}
	defer gemini.Close()

	scriptPipeline := pipeline.New(gemini, pipeline.ComplexityLimits{
		MaxChars:     cfg.MaxScriptChars,
		MaxLines:     cfg.MaxScriptLines,
		MaxTextCalls: cfg.MaxTextCalls,
	})

	videoRenderer, err := renderer.NewRenderer(cfg.VideoDir, cfg.TempDir, cfg.ManimQuality, cfg.ManimTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize renderer: %v", err)
	}

	jwtService := services.NewJWTService(cfg.JwtSecret)

	var googleAuth *services.GoogleAuthService
	if cfg.GoogleProjectID != "" {
		googleAuth, err = services.NewGoogleAuthService(context.Background(), cfg.GoogleProjectID)
		if err != nil {
			log.Warnf("Google sign-in disabled: %v", err)
			googleAuth = nil
		}
	} else {
		log.Info("GOOGLE_PROJECT_ID not set; Google sign-in disabled")
	}

	seedAdmin(store, cfg)

	apiHandlers := handlers.NewHandlers(cfg, store, jwtService, googleAuth, scriptPipeline, videoRenderer)

	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", apiHandlers.ServiceBanner)
	router.Static("/videos", cfg.VideoDir)

	api := router.Group("/api")
	{
		api.GET("/health", apiHandlers.HealthCheck)
		api.POST("/ask-doubt", middleware.OptionalAuthMiddleware(jwtService), apiHandlers.AskDoubt)
		api.GET("/my-videos", middleware.AuthMiddleware(jwtService), apiHandlers.ListMyVideos)

		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/waitlist", apiHandlers.JoinWaitlist)
			authRoutes.POST("/signup", apiHandlers.Signup)
			authRoutes.POST("/verify", apiHandlers.VerifyEmail)
			authRoutes.POST("/login", apiHandlers.LoginUser)
			authRoutes.POST("/google", apiHandlers.GoogleSignIn)
			authRoutes.POST("/refresh", apiHandlers.RefreshToken)
			authRoutes.GET("/me", middleware.AuthMiddleware(jwtService), apiHandlers.GetCurrentUser)
			authRoutes.GET("/credits", middleware.AuthMiddleware(jwtService), apiHandlers.GetCredits)
		}

		adminRoutes := api.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(jwtService), middleware.RequireAdmin(store))
		{
			adminRoutes.GET("/stats", apiHandlers.GetStats)
			adminRoutes.GET("/waitlist", apiHandlers.ListWaitlist)
			adminRoutes.GET("/users", apiHandlers.ListUsers)
			adminRoutes.GET("/users/:id", apiHandlers.GetUser)
			adminRoutes.POST("/users", apiHandlers.CreateUser)
			adminRoutes.PUT("/users/:id", apiHandlers.UpdateUser)
			adminRoutes.DELETE("/users/:id", apiHandlers.DeleteUser)
			adminRoutes.POST("/users/:id/reset-password", apiHandlers.ResetPassword)
			adminRoutes.POST("/users/:id/credits", apiHandlers.AddCredits)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Server listening on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server with a timeout of 5 seconds.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited gracefully.")
}

// seedAdmin makes sure the configured admin account exists on boot. An
// existing account with the admin email is promoted rather than replaced.
func seedAdmin(store *queries.Store, cfg *config.Config) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		log.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set; admin seeding skipped")
		return
	}
	email := strings.ToLower(cfg.AdminEmail)

	existing, err := store.FindUserByEmail(email)
	if err != nil {
		log.Errorf("Failed to check for admin account: %v", err)
		return
	}
	if existing != nil && existing.IsAdmin {
		log.Infof("Admin account already exists: %s", email)
		return
	}

	passwordHash, err := services.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Errorf("Failed to hash admin password: %v", err)
		return
	}

	if existing != nil {
		existing.PasswordHash = sql.NullString{String: passwordHash, Valid: true}
		existing.IsAdmin = true
		existing.IsVerified = true
		if err := store.UpdateUser(existing); err != nil {
			log.Errorf("Failed to promote admin account: %v", err)
			return
		}
		log.Infof("Existing account promoted to admin: %s", email)
		return
	}

	admin := &db.User{
		Email:        email,
		Username:     "admin",
		PasswordHash: sql.NullString{String: passwordHash, Valid: true},
		Credits:      cfg.DefaultCredits,
		IsAdmin:      true,
		IsVerified:   true,
	}
	if _, err := store.CreateUser(admin); err != nil {
		log.Errorf("Failed to seed admin account: %v", err)
		return
	}
	log.Infof("Admin account created: %s", email)
}
