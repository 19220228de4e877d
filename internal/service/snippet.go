// Package service contains the business rules that sit between the HTTP
// handlers and the storage and execution layers.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, applies defaults, orchestrates
//	Repository      → reads and writes the database
//	Executor        → compiles and runs code
//
// Services know nothing about HTTP. They report problems as apperror values
// and the handlers translate those into status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// Field limits, counted in characters.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxAuthorLength      = 50
	MaxTagLength         = 30
	MaxCodeLength        = 50000
	MaxInputLength       = 10000
	MaxOutputLength      = 10000

	DefaultListLimit = 10
	MaxListLimit     = 100
	DefaultAuthor    = "Anonymous"
)

// LanguageSupporter reports whether a language id can be executed.
// *language.Registry satisfies it.
type LanguageSupporter interface {
	Supports(id string) bool
}

// SnippetInput carries the fields of a create or update request. A nil
// pointer means the field was not sent: Create applies the default and
// Update leaves the stored value alone.
type SnippetInput struct {
	Title         *string     `json:"title"`
	Description   *string     `json:"description"`
	Language      *string     `json:"language"`
	Code          *string     `json:"code"`
	Input         *string     `json:"input"`
	Output        *string     `json:"output"`
	Author        *string     `json:"author"`
	Tags          *model.Tags `json:"tags"`
	IsPublic      *bool       `json:"isPublic"`
	ExecutionTime *int64      `json:"executionTime"`
	IsSuccessful  *bool       `json:"isSuccessful"`
}

// ListQuery is a page request as the API expresses it.
type ListQuery struct {
	Page      int
	Limit     int
	Language  string // "" or "all" means every language
	Search    string
	SortBy    string
	SortOrder string // "asc" or "desc"
	IsPublic  *bool
}

// SnippetService handles saved code.
type SnippetService struct {
	repo        repository.SnippetRepository
	langs       LanguageSupporter
	displayOnly map[string]bool
	logger      *slog.Logger
}

// NewSnippetService creates a SnippetService. displayOnly lists languages that
// can be saved for display even though no pipeline runs them.
func NewSnippetService(repo repository.SnippetRepository, langs LanguageSupporter, displayOnly []string, logger *slog.Logger) *SnippetService {
	set := make(map[string]bool, len(displayOnly))
	for _, id := range displayOnly {
		set[id] = true
	}
	return &SnippetService{
		repo:        repo,
		langs:       langs,
		displayOnly: set,
		logger:      logger,
	}
}

func (s *SnippetService) knownLanguage(id string) bool {
	return s.displayOnly[id] || s.langs.Supports(id)
}

// Create validates in and saves a new snippet.
func (s *SnippetService) Create(ctx context.Context, in SnippetInput) (*model.Snippet, error) {
	if err := s.validate(in, true); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Language: *in.Language,
		Code:     *in.Code,
		Author:   DefaultAuthor,
		Tags:     model.Tags{},
	}
	apply(snippet, in)
	if snippet.Title == "" {
		snippet.Title = fmt.Sprintf("Untitled %s Code", snippet.Language)
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("language", snippet.Language),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
	)
	return snippet, nil
}

// Get returns a snippet and counts the read as a view.
func (s *SnippetService) Get(ctx context.Context, id string) (*model.Snippet, error) {
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementViews(ctx, id); err != nil {
		return nil, fmt.Errorf("counting view: %w", err)
	}
	snippet.Views++
	return snippet, nil
}

// List returns one page of snippets with its pagination block.
func (s *SnippetService) List(ctx context.Context, q ListQuery) (*model.SnippetPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	lang := q.Language
	if lang == "all" {
		lang = ""
	}

	codes, total, err := s.repo.List(ctx, repository.ListOptions{
		Limit:    limit,
		Offset:   (page - 1) * limit,
		Language: lang,
		Search:   q.Search,
		IsPublic: q.IsPublic,
		SortBy:   q.SortBy,
		SortAsc:  strings.EqualFold(q.SortOrder, "asc"),
	})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	totalPages := (total + limit - 1) / limit
	return &model.SnippetPage{
		Codes: codes,
		Pagination: model.Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalCodes:  total,
			HasNext:     page < totalPages,
			HasPrev:     page > 1,
		},
	}, nil
}

// ListByLanguage returns the newest public snippets of one language.
func (s *SnippetService) ListByLanguage(ctx context.Context, lang string, limit int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	codes, err := s.repo.ListByLanguage(ctx, lang, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s snippets: %w", lang, err)
	}
	return codes, nil
}

// Update applies the fields present in in to an existing snippet.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput) (*model.Snippet, error) {
	if err := s.validate(in, false); err != nil {
		return nil, err
	}

	// Fetch first so a missing id reports NotFound before anything is written.
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(snippet, in)

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", id))
	return snippet, nil
}

// Delete removes a snippet.
func (s *SnippetService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// Like adds a like and returns the new total.
func (s *SnippetService) Like(ctx context.Context, id string) (int, error) {
	return s.repo.IncrementLikes(ctx, id)
}

// Stats summarizes the store.
func (s *SnippetService) Stats(ctx context.Context) (*model.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.Error("failed to compute statistics", slog.String("error", err.Error()))
		return nil, fmt.Errorf("computing statistics: %w", err)
	}
	return stats, nil
}

// validate checks every present field and reports all failures at once.
// Language and code are mandatory on create.
func (s *SnippetService) validate(in SnippetInput, create bool) error {
	var errs []apperror.FieldError
	fail := func(field, msg string) {
		errs = append(errs, apperror.FieldError{Field: field, Message: msg})
	}

	if in.Title != nil {
		if n := runes(strings.TrimSpace(*in.Title)); n < 1 || n > MaxTitleLength {
			fail("title", fmt.Sprintf("Title must be between 1 and %d characters", MaxTitleLength))
		}
	}
	if in.Description != nil && runes(strings.TrimSpace(*in.Description)) > MaxDescriptionLength {
		fail("description", fmt.Sprintf("Description must be less than %d characters", MaxDescriptionLength))
	}
	if in.Language != nil || create {
		if in.Language == nil || !s.knownLanguage(*in.Language) {
			fail("language", "Invalid language")
		}
	}
	if in.Code != nil || create {
		switch {
		case in.Code == nil || *in.Code == "":
			fail("code", "Code is required")
		case runes(*in.Code) > MaxCodeLength:
			fail("code", "Code must be less than "+sizeLabel(MaxCodeLength))
		}
	}
	if in.Input != nil && runes(*in.Input) > MaxInputLength {
		fail("input", "Input must be less than "+sizeLabel(MaxInputLength))
	}
	if in.Output != nil && runes(*in.Output) > MaxOutputLength {
		fail("output", "Output must be less than "+sizeLabel(MaxOutputLength))
	}
	if in.Author != nil && runes(strings.TrimSpace(*in.Author)) > MaxAuthorLength {
		fail("author", fmt.Sprintf("Author name must be less than %d characters", MaxAuthorLength))
	}
	if in.Tags != nil {
		for _, tag := range *in.Tags {
			if runes(tag) > MaxTagLength {
				fail("tags", fmt.Sprintf("Tags must be strings with max %d characters each", MaxTagLength))
				break
			}
		}
	}

	return apperror.Invalid(errs)
}

// apply copies the present fields of in onto snippet, trimming free text.
func apply(snippet *model.Snippet, in SnippetInput) {
	if in.Title != nil {
		snippet.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		snippet.Description = strings.TrimSpace(*in.Description)
	}
	if in.Language != nil {
		snippet.Language = *in.Language
	}
	if in.Code != nil {
		snippet.Code = *in.Code
	}
	if in.Input != nil {
		snippet.Input = *in.Input
	}
	if in.Output != nil {
		snippet.Output = *in.Output
	}
	if in.Author != nil {
		if author := strings.TrimSpace(*in.Author); author != "" {
			snippet.Author = author
		}
	}
	if in.Tags != nil {
		snippet.Tags = cleanTags(*in.Tags)
	}
	if in.IsPublic != nil {
		snippet.IsPublic = *in.IsPublic
	}
	if in.ExecutionTime != nil {
		snippet.ExecutionTime = *in.ExecutionTime
	}
	if in.IsSuccessful != nil {
		snippet.IsSuccessful = *in.IsSuccessful
	}
}

func cleanTags(tags model.Tags) model.Tags {
	out := model.Tags{}
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}

// sizeLabel renders a character limit the way the API words it: 50000 → "50KB".
func sizeLabel(n int) string {
	if n >= 1000 && n%1000 == 0 {
		return fmt.Sprintf("%dKB", n/1000)
	}
	return fmt.Sprintf("%d characters", n)
}
