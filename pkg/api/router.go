package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires the handlers under /api and wraps them with CORS
func NewRouter(handlers *Handlers) http.Handler {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")

	// Routes sit on the root router: a method mismatch inside a subrouter is a 404
	router.HandleFunc("/api/options", handlers.ListOptions).Methods("GET")

	// Runs
	router.HandleFunc("/api/runs", handlers.ListRuns).Methods("GET")
	router.HandleFunc("/api/runs", handlers.StartRun).Methods("POST")
	router.HandleFunc("/api/runs/{id}", handlers.GetRun).Methods("GET")
	router.HandleFunc("/api/runs/{id}/summary", handlers.GetRunSummary).Methods("GET")
	router.HandleFunc("/api/runs/{id}/results.csv", handlers.GetRunCSV).Methods("GET")
	router.HandleFunc("/api/runs/{id}/cancel", handlers.CancelRun).Methods("POST")

	// WebSocket for real-time updates
	router.HandleFunc("/api/runs/{id}/stream", handlers.StreamRunUpdates).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}
