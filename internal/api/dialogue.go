package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
)

// DialogueView is the body of GET /dialogue.
type DialogueView struct {
	User       string            `json:"user"`
	Bot        string            `json:"bot"`
	Dialogue   session.Dialogue  `json:"dialogue"`
	Transcript []session.Message `json:"transcript"`
}

// SwitchRequest is the body of POST /settings.
type SwitchRequest struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

func handleGetDialogue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, bot := deps.Session.Profile()
		writeJSON(w, http.StatusOK, DialogueView{
			User:       user,
			Bot:        bot,
			Dialogue:   deps.Session.Dialogue(),
			Transcript: deps.Session.Transcript(),
		})
	}
}

func handleReply(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req session.Reply
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		turn, err := deps.Session.Reply(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, turn)
	}
}

func handleReset(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Session.Reset(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

func handleAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Session.Analysis())
	}
}

type turnView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Category  string `json:"category,omitempty"`
	Reply     string `json:"reply"`
	Skipped   bool   `json:"skipped,omitempty"`
	Answered  string `json:"answered,omitempty"`
	Question  string `json:"question"`
}

func handleListTurns(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)

		turns, err := deps.Session.History(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list turns: %v", err)
			return
		}

		out := make([]turnView, len(turns))
		for i, t := range turns {
			out[i] = turnView{
				ID:        t.ID,
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
				Category:  t.Category,
				Reply:     t.Reply,
				Skipped:   t.Skipped,
				Answered:  t.Answered,
				Question:  t.Question,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Profiles.Settings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleSwitch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req SwitchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		user, bot := deps.Session.Profile()
		if req.User == "" {
			req.User = user
		}
		if req.Bot == "" {
			req.Bot = bot
		}

		s, err := deps.Session.Switch(r.Context(), req.User, req.Bot)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleExportProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := profile.Kind(chi.URLParam(r, "kind"))
		name := chi.URLParam(r, "name")

		bot := r.URL.Query().Get("bot")
		if kind == profile.KindUser && bot == "" {
			_, bot = deps.Session.Profile()
		}

		e, err := deps.Profiles.Export(kind, name, bot)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%s.json", kind, name)))
		writeJSON(w, http.StatusOK, e)
	}
}

func handleImportProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		var e profile.Export
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		reloaded, err := deps.Session.ImportProfile(r.Context(), e)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "imported",
			"kind":     e.Kind,
			"name":     e.Name,
			"keys":     len(e.Keys),
			"reloaded": reloaded,
		})
	}
}
