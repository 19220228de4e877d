package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/code-runner/internal/service"
)

// SnippetHandler serves the saved-code API under /api/codes.
type SnippetHandler struct {
	svc    *service.SnippetService
	logger *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(svc *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{svc: svc, logger: logger}
}

// Routes mounts the handler's endpoints. The fixed paths are registered
// before /{id} so "statistics" is never taken for an id.
//
//	GET    /                    → paginated list
//	GET    /statistics          → store statistics
//	GET    /language/{language} → public codes of one language
//	GET    /{id}                → one code (counts a view)
//	POST   /                    → create
//	PUT    /{id}                → partial update
//	DELETE /{id}                → delete
//	POST   /{id}/like           → add a like
func (h *SnippetHandler) Routes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/statistics", h.HandleStats)
	r.Get("/language/{language}", h.HandleListByLanguage)
	r.Get("/{id}", h.HandleGet)
	r.Post("/", h.HandleCreate)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	r.Post("/{id}/like", h.HandleLike)
}

// HandleList returns one page of codes.
//
// HTTP: GET /api/codes?page=1&limit=10&language=python&search=sort&sortBy=likes&sortOrder=desc&isPublic=true
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := service.ListQuery{
		Page:      atoiOrZero(q.Get("page")),
		Limit:     atoiOrZero(q.Get("limit")),
		Language:  q.Get("language"),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	// Any value other than "true" selects private codes.
	if q.Has("isPublic") {
		public := q.Get("isPublic") == "true"
		query.IsPublic = &public
	}

	page, err := h.svc.List(r.Context(), query)
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch codes")
		return
	}
	writeOK(w, http.StatusOK, "", page)
}

// HandleGet returns one code with its body.
//
// HTTP: GET /api/codes/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch code")
		return
	}
	writeOK(w, http.StatusOK, "", snippet)
}

// HandleCreate saves a new code.
//
// HTTP: POST /api/codes
// REQUEST BODY: {"language": "python", "code": "print(1)", "title": "...", "tags": "a, b", ...}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if !decodeJSON(w, r, &in) {
		return
	}

	snippet, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err, "Failed to save code")
		return
	}
	writeOK(w, http.StatusCreated, "Code saved successfully", snippet)
}

// HandleUpdate changes the fields present in the body.
//
// HTTP: PUT /api/codes/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.SnippetInput
	if !decodeJSON(w, r, &in) {
		return
	}

	snippet, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update code")
		return
	}
	writeOK(w, http.StatusOK, "Code updated successfully", snippet)
}

// HandleDelete removes a code.
//
// HTTP: DELETE /api/codes/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err, "Failed to delete code")
		return
	}
	writeOK(w, http.StatusOK, "Code deleted successfully", map[string]string{"id": id})
}

// HandleLike adds a like.
//
// HTTP: POST /api/codes/{id}/like
func (h *SnippetHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	likes, err := h.svc.Like(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to update like status")
		return
	}
	writeOK(w, http.StatusOK, "Code like status updated", map[string]int{"likes": likes})
}

// HandleListByLanguage returns the newest public codes of one language.
//
// HTTP: GET /api/codes/language/{language}?limit=10
func (h *SnippetHandler) HandleListByLanguage(w http.ResponseWriter, r *http.Request) {
	codes, err := h.svc.ListByLanguage(r.Context(), chi.URLParam(r, "language"), atoiOrZero(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch codes by language")
		return
	}
	writeOK(w, http.StatusOK, "", codes)
}

// HandleStats summarizes the store.
//
// HTTP: GET /api/codes/statistics
func (h *SnippetHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "Failed to fetch statistics")
		return
	}
	writeOK(w, http.StatusOK, "", stats)
}

// atoiOrZero parses s, treating anything unparsable as "not given".
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
