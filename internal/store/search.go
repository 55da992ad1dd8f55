package store

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/uma-friends/internal/model"
)

// SearchParams holds parameters for searching friend comments.
type SearchParams struct {
	Query string
	Limit int
}

// SearchResult wraps a friend with the part of the comment that matched.
type SearchResult struct {
	model.CleanFriend
	Snippet string `json:"snippet,omitempty"`
}

const snippetRadius = 20

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search finds friends whose comment contains the query substring.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + likeEscaper.Replace(p.Query) + "%"
	friends, err := s.queryCleans(ctx,
		`SELECT doc FROM friends WHERE comment LIKE ? ESCAPE '\' ORDER BY posted_at DESC, id LIMIT ?`,
		pattern, limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(friends))
	for _, f := range friends {
		r := SearchResult{CleanFriend: f}
		if f.Comment != nil {
			r.Snippet = snippet(*f.Comment, p.Query)
		}
		results = append(results, r)
	}
	return results, nil
}

// snippet cuts the text around the first case-insensitive match of query.
func snippet(text, query string) string {
	i := strings.Index(text, query)
	if lower := strings.ToLower(text); i < 0 && len(lower) == len(text) {
		// LIKE matched ASCII case-insensitively
		i = strings.Index(lower, strings.ToLower(query))
	}
	if i < 0 {
		return ""
	}
	start := i
	for n := 0; n < snippetRadius && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := i + len(query)
	for n := 0; n < snippetRadius && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}

	out := strings.ReplaceAll(text[start:end], "\n", " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}
