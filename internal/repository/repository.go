// Package repository holds the three topic collections (bundled app topics,
// user-saved topics and community topics) behind one lock. Saved topics are
// written through to a SavedStore on every change; community topics are
// fetched lazily through a Fetcher.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

// SavedStore persists the saved collection.
type SavedStore interface {
	LoadSavedTopics() ([]model.TopicEntry, error)
	ReplaceSavedTopics(entries []model.TopicEntry) error
}

// Fetcher retrieves the community manifest and topic content.
type Fetcher interface {
	FetchManifest(ctx context.Context) ([]model.ManifestEntry, error)
	FetchContent(ctx context.Context, url string) (string, error)
}

type Option func(*Repository)

// WithLogger sets the logger used for background work. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.log = l }
}

type Repository struct {
	mu         sync.RWMutex
	app        []model.TopicEntry
	saved      []model.TopicEntry
	community  []model.TopicEntry
	generation uint64

	store   SavedStore
	fetcher Fetcher
	flight  singleflight.Group
	log     *slog.Logger

	subMu  sync.Mutex
	subs   map[int]chan model.Mode
	nextID int
}

// New builds a repository over the given app topics and loads the saved
// collection from store. store and fetcher may be nil; without a store saved
// topics live in memory only, without a fetcher the community collection
// stays empty.
func New(app []model.TopicEntry, store SavedStore, fetcher Fetcher, opts ...Option) (*Repository, error) {
	r := &Repository{
		store:   store,
		fetcher: fetcher,
		log:     slog.Default(),
		subs:    make(map[int]chan model.Mode),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.app = make([]model.TopicEntry, 0, len(app))
	for _, e := range app {
		r.app = append(r.app, model.TopicEntry{
			Name:       e.Name,
			Quiz:       e.Quiz.Clone(),
			Provenance: model.ModeApp,
			State:      model.StatePopulated,
		})
	}

	if store != nil {
		loaded, err := store.LoadSavedTopics()
		if err != nil {
			return nil, fmt.Errorf("load saved topics: %w", err)
		}
		seen := make(map[string]bool, len(loaded))
		for _, e := range loaded {
			if strings.TrimSpace(e.Name) == "" || seen[e.Name] {
				r.log.Warn("dropping saved topic on load", "name", e.Name)
				continue
			}
			seen[e.Name] = true
			e.Provenance = model.ModeSaved
			e.State = model.StatePopulated
			e.RemoteURL = ""
			r.saved = append(r.saved, e)
		}
	}

	r.log.Debug("repository ready", "app", len(r.app), "saved", len(r.saved))
	return r, nil
}

func (r *Repository) collection(mode model.Mode) ([]model.TopicEntry, error) {
	switch mode {
	case model.ModeApp:
		return r.app, nil
	case model.ModeSaved:
		return r.saved, nil
	case model.ModeCommunity:
		return r.community, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

func copyEntries(entries []model.TopicEntry) []model.TopicEntry {
	out := make([]model.TopicEntry, len(entries))
	for i, e := range entries {
		e.Quiz = e.Quiz.Clone()
		out[i] = e
	}
	return out
}

// List returns a snapshot of the collection for mode. An unknown mode yields
// an empty list.
func (r *Repository) List(mode model.Mode) []model.TopicEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, err := r.collection(mode)
	if err != nil {
		return []model.TopicEntry{}
	}
	return copyEntries(entries)
}

// Topic returns a copy of one entry.
func (r *Repository) Topic(mode model.Mode, index int) (model.TopicEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, err := r.collection(mode)
	if err != nil {
		return model.TopicEntry{}, err
	}
	if index < 0 || index >= len(entries) {
		return model.TopicEntry{}, fmt.Errorf("%w: %s %d", ErrIndexOutOfRange, mode, index)
	}
	e := entries[index]
	e.Quiz = e.Quiz.Clone()
	return e, nil
}

// Save appends a topic to the saved collection and persists it. On a
// persistence failure the collection is left unchanged.
func (r *Repository) Save(entry model.TopicEntry) error {
	if strings.TrimSpace(entry.Name) == "" {
		return ErrEmptyName
	}
	if err := parser.Validate(entry.Quiz); err != nil {
		return fmt.Errorf("validate topic %q: %w", entry.Name, err)
	}

	r.mu.Lock()
	for _, e := range r.saved {
		if e.Name == entry.Name {
			r.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrDuplicateName, entry.Name)
		}
	}
	prev := r.saved
	r.saved = append(r.saved[:len(r.saved):len(r.saved)], model.TopicEntry{
		Name:       entry.Name,
		Quiz:       entry.Quiz.Clone(),
		Provenance: model.ModeSaved,
		State:      model.StatePopulated,
	})
	if err := r.persistLocked(); err != nil {
		r.saved = prev
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.log.Info("topic saved", "name", entry.Name)
	r.notify(model.ModeSaved)
	return nil
}

// RemoveSaved removes the saved topics with the given names. Names that are
// not saved are ignored.
func (r *Repository) RemoveSaved(names ...string) error {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	r.mu.Lock()
	removed, err := r.removeLocked(drop)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if removed > 0 {
		r.log.Info("saved topics removed", "count", removed)
		r.notify(model.ModeSaved)
	}
	return nil
}

// RemoveSavedAt removes saved topics by position. Indices are resolved to
// names against the same snapshot; out-of-range and repeated indices are
// ignored.
func (r *Repository) RemoveSavedAt(indices ...int) error {
	r.mu.Lock()
	drop := make(map[string]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(r.saved) {
			drop[r.saved[i].Name] = true
		}
	}
	removed, err := r.removeLocked(drop)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if removed > 0 {
		r.log.Info("saved topics removed", "count", removed)
		r.notify(model.ModeSaved)
	}
	return nil
}

func (r *Repository) removeLocked(drop map[string]bool) (int, error) {
	kept := make([]model.TopicEntry, 0, len(r.saved))
	for _, e := range r.saved {
		if !drop[e.Name] {
			kept = append(kept, e)
		}
	}
	removed := len(r.saved) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	prev := r.saved
	r.saved = kept
	if err := r.persistLocked(); err != nil {
		r.saved = prev
		return 0, err
	}
	return removed, nil
}

func (r *Repository) persistLocked() error {
	if r.store == nil {
		return nil
	}
	if err := r.store.ReplaceSavedTopics(copyEntries(r.saved)); err != nil {
		return fmt.Errorf("persist saved topics: %w", err)
	}
	return nil
}
