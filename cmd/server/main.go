package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"expense-api/internal/auth"
	"expense-api/internal/handlers"
	"expense-api/internal/storage"

	"github.com/joho/godotenv"
)

const defaultTokenTTL = 30 * time.Minute

func main() {
	// Load .env if present; fine when missing in production
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	dbPath := getenv("DB_PATH", "expenses.db")
	port := getenv("PORT", "8080")

	ttl := defaultTokenTTL
	if v := os.Getenv("TOKEN_TTL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatalf("Invalid TOKEN_TTL_MINUTES %q", v)
		}
		ttl = time.Duration(n) * time.Minute
	}

	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if count, err := db.UserCount(); err == nil {
		log.Printf("Database ready at %s (%d users)", dbPath, count)
	}

	tokens := auth.NewTokenService([]byte(secret), ttl)
	h := handlers.NewHandlers(db, tokens)

	log.Printf("Starting server on port %s", port)
	if err := http.ListenAndServe(":"+port, setupRouter(h)); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) http.Handler {
	return handlers.LogMiddleware(h.Routes())
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
