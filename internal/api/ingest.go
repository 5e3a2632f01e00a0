package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/learnbot/internal/ingest"
	"github.com/kalambet/learnbot/internal/profile"
	"github.com/kalambet/learnbot/internal/session"
	"github.com/kalambet/learnbot/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB
const maxRequestBodySize = 1 << 20 // 1MB

// Learning source types.
const (
	SourceText = "text"
	SourceFile = "file"
	SourceURL  = "url"
)

// UploadedFile is a base64-encoded document in a learning request.
type UploadedFile struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
}

// LearnRequest is the body of POST /learning. Content is plain text for
// type "text". For type "file" the documents are in Files. For type "url"
// the document is fetched from URL.
type LearnRequest struct {
	Bot      string         `json:"bot,omitempty"`
	Category string         `json:"category"`
	Type     string         `json:"type,omitempty"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content,omitempty"`
	Files    []UploadedFile `json:"files,omitempty"`
	URL      string         `json:"url,omitempty"`
	Async    bool           `json:"async,omitempty"`
}

type AppDeps struct {
	Store      *storage.Store
	Session    *session.Session
	Profiles   *profile.Manager
	Token      string
	HTTPClient *http.Client
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token, "/health"))

	r.Get("/health", handleHealth)

	r.Post("/learning", handleLearn(deps))
	r.Get("/corpora", handleListCorpora(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))

	r.Get("/dialogue", handleGetDialogue(deps))
	r.Post("/dialogue", handleReply(deps))
	r.Post("/dialogue/reset", handleReset(deps))
	r.Get("/analysis", handleAnalysis(deps))
	r.Get("/turns", handleListTurns(deps))

	r.Get("/settings", handleGetSettings(deps))
	r.Post("/settings", handleSwitch(deps))
	r.Get("/profiles/{kind}/{name}", handleExportProfile(deps))
	r.Post("/profiles", handleImportProfile(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleLearn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req LearnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Category = strings.TrimSpace(req.Category)
		if err := profile.ValidateCategory(req.Category); err != nil {
			writeError(w, err)
			return
		}
		if req.Type == "" {
			req.Type = SourceText
		}

		corpus, err := resolveCorpus(r, deps, &req)
		if err != nil {
			writeError(w, err)
			return
		}
		if corpus == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "corpus is empty")
			return
		}

		if !req.Async {
			res, err := deps.Session.Learn(r.Context(), session.LearnRequest{
				Bot:      req.Bot,
				Category: req.Category,
				Corpus:   corpus,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}

		bot := req.Bot
		if bot == "" {
			_, bot = deps.Session.Profile()
		}
		if err := profile.ValidateName(bot); err != nil {
			writeError(w, err)
			return
		}
		c, jobID, err := ingest.Enqueue(deps.Store, storage.Corpus{
			Bot:      bot,
			Category: req.Category,
			Title:    req.Title,
			Source:   req.Type,
			Content:  corpus,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"corpus_id": c.ID,
			"job_id":    jobID,
			"status":    "queued",
		})
	}
}

// resolveCorpus turns a learning request into plain text, decoding files
// and fetching URLs as needed. It fills in a missing title.
func resolveCorpus(r *http.Request, deps AppDeps, req *LearnRequest) (string, error) {
	switch req.Type {
	case SourceText:
		return strings.TrimSpace(req.Content), nil

	case SourceFile:
		if len(req.Files) == 0 {
			return "", fmt.Errorf("%w: files are required for type file", errBadRequest)
		}
		files := make([]ingest.File, len(req.Files))
		names := make([]string, len(req.Files))
		for i, f := range req.Files {
			data, err := base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				return "", fmt.Errorf("%w: invalid base64 content in %q", errBadRequest, f.Name)
			}
			files[i] = ingest.File{Name: f.Name, ContentType: f.ContentType, Data: data}
			names[i] = f.Name
		}
		texts, err := ingest.ExtractAll(r.Context(), files, 4)
		if err != nil {
			return "", err
		}
		if req.Title == "" {
			req.Title = strings.Join(names, ", ")
		}
		return strings.TrimSpace(strings.Join(texts, "\n\n")), nil

	case SourceURL:
		f, err := ingest.Fetch(r.Context(), deps.HTTPClient, req.URL)
		if err != nil {
			return "", err
		}
		text, err := ingest.ExtractText(f)
		if err != nil {
			return "", err
		}
		if req.Title == "" {
			req.Title = req.URL
		}
		return text, nil

	default:
		return "", fmt.Errorf("%w: unknown source type %q", errBadRequest, req.Type)
	}
}

type corpusSummary struct {
	ID        string `json:"id"`
	Bot       string `json:"bot"`
	Category  string `json:"category"`
	Title     string `json:"title,omitempty"`
	Source    string `json:"source"`
	Size      int    `json:"size"`
	CreatedAt string `json:"created_at"`
}

func handleListCorpora(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		corpora, err := deps.Store.ListCorpora(r.URL.Query().Get("bot"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list corpora: %v", err)
			return
		}

		out := make([]corpusSummary, len(corpora))
		for i, c := range corpora {
			out[i] = corpusSummary{
				ID:        c.ID,
				Bot:       c.Bot,
				Category:  c.Category,
				Title:     c.Title,
				Source:    c.Source,
				Size:      len(c.Content),
				CreatedAt: c.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type jobStatus struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, fmt.Errorf("job: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, jobStatus{
			ID:        job.ID,
			Type:      job.Type,
			Status:    job.Status,
			Attempts:  job.Attempts,
			LastError: job.LastError,
			UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
