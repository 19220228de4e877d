// Package model defines the data structures shared by the repository, service
// and handler layers.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Snippet is a saved piece of code, optionally with the input it was run
// with and the output it produced.
//
// Code, Input and Output are left empty in list views, and omitempty keeps
// them out of the JSON there.
type Snippet struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Language      string    `json:"language"`
	Code          string    `json:"code,omitempty"`
	Input         string    `json:"input,omitempty"`
	Output        string    `json:"output,omitempty"`
	Author        string    `json:"author"`
	Tags          Tags      `json:"tags"`
	IsPublic      bool      `json:"isPublic"`
	Views         int       `json:"views"`
	Likes         int       `json:"likes"`
	ExecutionTime int64     `json:"executionTime"`
	IsSuccessful  bool      `json:"isSuccessful"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Tags is a list of labels. In JSON it is an array of strings, but a single
// comma-separated string is accepted too: "go, cli" decodes to ["go","cli"].
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*t = SplitTags(joined)
	return nil
}

func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// SplitTags splits a comma-separated list, trimming blanks.
func SplitTags(s string) Tags {
	tags := Tags{}
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Pagination describes one page of a list.
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCodes  int  `json:"totalCodes"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// SnippetPage is one page of snippets.
type SnippetPage struct {
	Codes      []Snippet  `json:"codes"`
	Pagination Pagination `json:"pagination"`
}

// LanguageStat aggregates the public snippets of one language.
type LanguageStat struct {
	Language         string  `json:"language"`
	Count            int     `json:"count"`
	AvgExecutionTime float64 `json:"avgExecutionTime"`
	TotalLikes       int     `json:"totalLikes"`
	TotalViews       int     `json:"totalViews"`
}

// Stats summarizes the whole store.
type Stats struct {
	TotalCodes      int            `json:"totalCodes"`
	PublicCodes     int            `json:"publicCodes"`
	LanguageStats   []LanguageStat `json:"languageStats"`
	RecentCodes     []Snippet      `json:"recentCodes"`
	MostLikedCodes  []Snippet      `json:"mostLikedCodes"`
	MostViewedCodes []Snippet      `json:"mostViewedCodes"`
}
