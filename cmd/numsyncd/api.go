package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"numsync/codec"
	"numsync/core"
)

// newRouter exposes the read-only local API the presentation layer consumes.
// Everything served here comes from immutable engine snapshots.
func newRouter(engine *core.Engine, slotCodec *codec.Codec) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tournaments", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, engine.Tournaments())
		})
		r.Get("/tournaments/{id}/prizes", func(w http.ResponseWriter, req *http.Request) {
			id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 64)
			if err != nil {
				http.Error(w, "invalid tournament id", http.StatusBadRequest)
				return
			}
			writeJSON(w, engine.Prizes(id))
		})
		r.Get("/games/{token}", func(w http.ResponseWriter, req *http.Request) {
			tokenID, err := strconv.ParseUint(chi.URLParam(req, "token"), 10, 64)
			if err != nil {
				http.Error(w, "invalid token id", http.StatusBadRequest)
				return
			}
			state, ok := engine.GameState(tokenID)
			if !ok {
				http.Error(w, "game not tracked", http.StatusNotFound)
				return
			}
			values, err := state.SlotValues(slotCodec)
			if err != nil {
				http.Error(w, "undecodable slot payload", http.StatusUnprocessableEntity)
				return
			}
			writeJSON(w, map[string]interface{}{
				"state":       state,
				"slotValues":  values,
				"filledSlots": codec.FilledSlots(values),
			})
		})
		r.Get("/leaderboard", func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Query().Get("more") == "true" {
				_ = engine.LoadMoreLeaderboard(req.Context())
			}
			writeJSON(w, map[string]interface{}{
				"entries": engine.Leaderboard(),
				"hasMore": engine.Pager().HasMore(),
				"offset":  engine.Pager().Offset(),
			})
		})
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			status := map[string]interface{}{"tournament": engine.ActiveTournament()}
			if err := engine.Err(); err != nil {
				status["advisory"] = err.Error()
			}
			writeJSON(w, status)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
	}
}
