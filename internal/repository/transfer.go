package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

// SaveFromInput saves a topic from user input that is either an http(s) URL
// pointing at topic content or the content itself, in either format. When
// the URL cannot be fetched the input is parsed as content; if that fails
// too, the fetch error is returned.
func (r *Repository) SaveFromInput(ctx context.Context, name, input string) error {
	content := input
	var fetchErr error
	if u := strings.TrimSpace(input); r.fetcher != nil && isRemoteURL(u) {
		body, err := r.fetcher.FetchContent(ctx, u)
		if err == nil {
			content = body
		} else {
			fetchErr = err
			r.log.Debug("input URL not fetched, parsing as content", "url", u, "error", err)
		}
	}

	quiz, err := parser.Decode(content)
	if err != nil {
		if fetchErr != nil {
			return fmt.Errorf("fetch topic content: %w", fetchErr)
		}
		return fmt.Errorf("parse topic content: %w", err)
	}
	return r.Save(model.TopicEntry{Name: name, Quiz: quiz})
}

func isRemoteURL(s string) bool {
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Export returns the structured payload of one topic.
func (r *Repository) Export(mode model.Mode, index int) (string, error) {
	e, err := r.Topic(mode, index)
	if err != nil {
		return "", err
	}
	if !e.Loaded() {
		return "", fmt.Errorf("%w: %q", ErrNotLoaded, e.Name)
	}
	return parser.SerializeStructured(e.Quiz)
}

// ExportSaved returns named payloads for the saved topics at indices, in the
// order given.
func (r *Repository) ExportSaved(indices ...int) ([]model.TopicExport, error) {
	r.mu.RLock()
	entries := make([]model.TopicEntry, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(r.saved) {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: saved %d", ErrIndexOutOfRange, i)
		}
		entries = append(entries, r.saved[i])
	}
	r.mu.RUnlock()

	out := make([]model.TopicExport, 0, len(entries))
	for _, e := range entries {
		payload, err := parser.SerializeStructured(e.Quiz)
		if err != nil {
			return nil, fmt.Errorf("export topic %q: %w", e.Name, err)
		}
		out = append(out, model.TopicExport{Name: e.Name, Payload: payload})
	}
	return out, nil
}
