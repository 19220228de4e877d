package handler

import (
	"net/http"

	"github.com/sakif/code-runner/internal/executor/language"
)

// LanguageLister lists the executable languages. *language.Registry
// satisfies it.
type LanguageLister interface {
	Languages() []language.Pipeline
}

// LanguageInfo describes one language to API clients.
type LanguageInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Compiled  bool   `json:"compiled"`
}

// LanguagesHandler serves the language list.
type LanguagesHandler struct {
	langs LanguageLister
}

// NewLanguagesHandler creates a new LanguagesHandler.
func NewLanguagesHandler(langs LanguageLister) *LanguagesHandler {
	return &LanguagesHandler{langs: langs}
}

// HandleList returns every executable language, ordered by id.
//
// HTTP: GET /api/languages
func (h *LanguagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	pipelines := h.langs.Languages()
	out := make([]LanguageInfo, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, LanguageInfo{
			ID:        p.ID,
			Name:      p.Name,
			Extension: p.Extension,
			Compiled:  p.Compiled(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
