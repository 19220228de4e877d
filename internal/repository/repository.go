// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/code-runner/internal/model"
)

// Sort fields accepted by List.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortTitle     = "title"
	SortViews     = "views"
	SortLikes     = "likes"
)

// ListOptions filters, orders and pages a List call.
type ListOptions struct {
	Limit  int
	Offset int
	// Language restricts the list to one language. Empty means all.
	Language string
	// Search matches title, description and tags, case-insensitively.
	Search string
	// IsPublic restricts by visibility when set.
	IsPublic *bool
	// SortBy is one of the Sort constants. Empty means SortCreatedAt.
	SortBy  string
	SortAsc bool
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	// List returns the requested page, without code, input and output,
	// and the total number of matching snippets.
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, int, error)
	// ListByLanguage returns the newest public snippets of a language.
	ListByLanguage(ctx context.Context, language string, limit int) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	// IncrementLikes adds a like and returns the new count.
	IncrementLikes(ctx context.Context, id string) (int, error)
	Stats(ctx context.Context) (*model.Stats, error)
}
