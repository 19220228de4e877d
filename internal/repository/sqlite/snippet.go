package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/model"
	"github.com/sakif/code-runner/internal/repository"
)

// Compile-time check that *DB implements the interface.
var _ repository.SnippetRepository = (*DB)(nil)

// summaryColumns are the columns of list views: everything except the
// potentially large code, input and output bodies.
const summaryColumns = `id, title, description, language, author, tags, is_public,
	views, likes, execution_time, is_successful, created_at, updated_at`

const fullColumns = summaryColumns + `, code, input, output`

// sortColumns maps the API's sort names to columns. Only these names ever
// reach the ORDER BY clause.
var sortColumns = map[string]string{
	repository.SortCreatedAt: "created_at",
	repository.SortUpdatedAt: "updated_at",
	repository.SortTitle:     "title",
	repository.SortViews:     "views",
	repository.SortLikes:     "likes",
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner, full bool) (*model.Snippet, error) {
	var (
		s    model.Snippet
		tags string
	)
	dest := []any{
		&s.ID, &s.Title, &s.Description, &s.Language, &s.Author, &tags, &s.IsPublic,
		&s.Views, &s.Likes, &s.ExecutionTime, &s.IsSuccessful, &s.CreatedAt, &s.UpdatedAt,
	}
	if full {
		dest = append(dest, &s.Code, &s.Input, &s.Output)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", s.ID, err)
	}
	return &s, nil
}

func encodeTags(tags model.Tags) (string, error) {
	if tags == nil {
		tags = model.Tags{}
	}
	data, err := json.Marshal([]string(tags))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Create inserts a snippet, assigning its ID and timestamps.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	// xid IDs are 20 URL-safe characters and sort by creation time.
	snippet.ID = xid.New().String()

	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	tags, err := encodeTags(snippet.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, title, description, language, author, tags, is_public,
		                       views, likes, execution_time, is_successful, created_at, updated_at,
		                       code, input, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID, snippet.Title, snippet.Description, snippet.Language, snippet.Author, tags,
		snippet.IsPublic, snippet.Views, snippet.Likes, snippet.ExecutionTime, snippet.IsSuccessful,
		snippet.CreatedAt, snippet.UpdatedAt, snippet.Code, snippet.Input, snippet.Output,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}
	return nil
}

// GetByID returns the complete snippet.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+fullColumns+` FROM snippets WHERE id = ?`, id)

	snippet, err := scanSnippet(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("code")
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return snippet, nil
}

// List returns one page of snippet summaries and the number of matches.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where, args := filterClause(opts)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting snippets: %w", err)
	}

	column, ok := sortColumns[opts.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if opts.SortAsc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM snippets%s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		summaryColumns, where, column, direction, direction)

	snippets, err := db.querySummaries(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	return snippets, total, nil
}

// filterClause builds the WHERE clause for opts. It only ever adds
// placeholders; values travel in args.
func filterClause(opts repository.ListOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if opts.IsPublic != nil {
		conds = append(conds, "is_public = ?")
		args = append(args, *opts.IsPublic)
	}
	if opts.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, opts.Language)
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike makes LIKE treat % and _ in user input literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListByLanguage returns the newest public snippets of one language.
func (db *DB) ListByLanguage(ctx context.Context, language string, limit int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = 10
	}
	snippets, err := db.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM snippets
		 WHERE language = ? AND is_public = 1
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		language, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s snippets: %w", language, err)
	}
	return snippets, nil
}

func (db *DB) querySummaries(ctx context.Context, query string, args ...any) ([]model.Snippet, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Rows hold a pooled connection until closed.
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snippets: %w", err)
	}
	return snippets, nil
}

// Update stores every mutable field of snippet. ID, counters and CreatedAt
// are left alone.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(snippet.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, description = ?, language = ?, code = ?, input = ?, output = ?,
		     author = ?, tags = ?, is_public = ?, execution_time = ?, is_successful = ?,
		     updated_at = ?
		 WHERE id = ?`,
		snippet.Title, snippet.Description, snippet.Language, snippet.Code, snippet.Input,
		snippet.Output, snippet.Author, tags, snippet.IsPublic, snippet.ExecutionTime,
		snippet.IsSuccessful, snippet.UpdatedAt, snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	return requireRow(result, snippet.ID)
}

// Delete removes a snippet.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return requireRow(result, id)
}

// IncrementViews adds one view. The counter is updated in SQL so concurrent
// readers never lose an increment.
func (db *DB) IncrementViews(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE snippets SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views of %s: %w", id, err)
	}
	return requireRow(result, id)
}

// IncrementLikes adds one like and returns the new count.
func (db *DB) IncrementLikes(ctx context.Context, id string) (int, error) {
	var likes int
	err := db.conn.QueryRowContext(ctx,
		`UPDATE snippets SET likes = likes + 1 WHERE id = ? RETURNING likes`, id,
	).Scan(&likes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("code")
		}
		return 0, fmt.Errorf("sqlite: incrementing likes of %s: %w", id, err)
	}
	return likes, nil
}

// requireRow turns "no row affected" into a not-found error.
func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("code")
	}
	return nil
}

// Stats aggregates the store. Language figures and the top lists only
// consider public snippets.
func (db *DB) Stats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{}

	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_public), 0) FROM snippets`,
	).Scan(&stats.TotalCodes, &stats.PublicCodes); err != nil {
		return nil, fmt.Errorf("sqlite: counting snippets: %w", err)
	}

	langs, err := db.languageStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.LanguageStats = langs

	top := []struct {
		dest    *[]model.Snippet
		orderBy string
	}{
		{&stats.RecentCodes, "created_at DESC"},
		{&stats.MostLikedCodes, "likes DESC, created_at DESC"},
		{&stats.MostViewedCodes, "views DESC, created_at DESC"},
	}
	for _, q := range top {
		snippets, err := db.querySummaries(ctx,
			`SELECT `+summaryColumns+` FROM snippets WHERE is_public = 1 ORDER BY `+q.orderBy+` LIMIT 5`)
		if err != nil {
			return nil, fmt.Errorf("sqlite: loading top snippets: %w", err)
		}
		*q.dest = snippets
	}

	return stats, nil
}

func (db *DB) languageStats(ctx context.Context) ([]model.LanguageStat, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT language, COUNT(*), AVG(execution_time), SUM(likes), SUM(views)
		 FROM snippets
		 WHERE is_public = 1
		 GROUP BY language
		 ORDER BY COUNT(*) DESC, language ASC
		 LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating languages: %w", err)
	}
	defer rows.Close()

	stats := make([]model.LanguageStat, 0)
	for rows.Next() {
		var s model.LanguageStat
		if err := rows.Scan(&s.Language, &s.Count, &s.AvgExecutionTime, &s.TotalLikes, &s.TotalViews); err != nil {
			return nil, fmt.Errorf("sqlite: scanning language stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating language stats: %w", err)
	}
	return stats, nil
}
