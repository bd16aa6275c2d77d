package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

// Generation returns the current community manifest generation. It changes
// on every refresh.
func (r *Repository) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// RefreshCommunity discards the community collection and reloads the
// manifest. Entries are installed as placeholders unless another refresh
// started while the manifest was in flight, in which case
// ErrStaleGeneration is returned.
func (r *Repository) RefreshCommunity(ctx context.Context) error {
	if r.fetcher == nil {
		return ErrNoCommunitySource
	}

	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.community = nil
	r.mu.Unlock()
	r.notify(model.ModeCommunity)

	manifest, err := r.fetcher.FetchManifest(ctx)
	if err != nil {
		r.log.Warn("community refresh failed", "generation", gen, "error", err)
		return fmt.Errorf("fetch manifest: %w", err)
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		r.log.Debug("dropping stale manifest", "generation", gen)
		return ErrStaleGeneration
	}
	community := make([]model.TopicEntry, 0, len(manifest))
	for _, m := range manifest {
		community = append(community, model.TopicEntry{
			Name:       m.Name,
			Provenance: model.ModeCommunity,
			State:      model.StatePlaceholder,
			RemoteURL:  m.RemoteURL,
		})
	}
	r.community = community
	r.mu.Unlock()

	r.log.Info("community topics refreshed", "generation", gen, "topics", len(community))
	r.notify(model.ModeCommunity)
	return nil
}

// RefreshCommunityAsync runs RefreshCommunity in the background. The
// returned channel yields its result and is then closed.
func (r *Repository) RefreshCommunityAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- r.RefreshCommunity(ctx)
	}()
	return done
}

// ResolveCommunity returns the quiz of a community topic, fetching and
// parsing it on first use. Concurrent callers for the same topic share one
// fetch. The fetch is not cancelled when ctx is; ctx only bounds how long
// this caller waits.
func (r *Repository) ResolveCommunity(ctx context.Context, index int) (model.Quiz, error) {
	r.mu.RLock()
	if index < 0 || index >= len(r.community) {
		r.mu.RUnlock()
		return model.Quiz{}, fmt.Errorf("%w: community %d", ErrIndexOutOfRange, index)
	}
	e := r.community[index]
	gen := r.generation
	r.mu.RUnlock()

	if e.Loaded() {
		return e.Quiz.Clone(), nil
	}

	key := fmt.Sprintf("%d:%d", gen, index)
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(key, func() (any, error) {
		return r.fetchCommunity(fetchCtx, gen, index)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return model.Quiz{}, res.Err
		}
		return res.Val.(model.Quiz).Clone(), nil
	case <-ctx.Done():
		return model.Quiz{}, ctx.Err()
	}
}

func (r *Repository) fetchCommunity(ctx context.Context, gen uint64, index int) (model.Quiz, error) {
	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return model.Quiz{}, ErrStaleGeneration
	}
	e := r.community[index]
	if e.Loaded() {
		r.mu.Unlock()
		return e.Quiz, nil
	}
	r.community[index].State = model.StateFetching
	r.mu.Unlock()

	r.log.Debug("fetching community topic", "name", e.Name, "url", e.RemoteURL, "generation", gen)
	content, err := r.fetcher.FetchContent(ctx, e.RemoteURL)
	var quiz model.Quiz
	if err == nil {
		quiz, err = parser.Decode(content)
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		r.log.Debug("dropping stale community topic", "name", e.Name, "generation", gen)
		return model.Quiz{}, ErrStaleGeneration
	}
	if err != nil {
		r.community[index].State = model.StatePlaceholder
		r.mu.Unlock()
		r.log.Warn("community topic failed", "name", e.Name, "error", err)
		return model.Quiz{}, fmt.Errorf("resolve community topic %q: %w", e.Name, err)
	}
	r.community[index].Quiz = quiz
	r.community[index].State = model.StatePopulated
	r.mu.Unlock()

	r.notify(model.ModeCommunity)
	return quiz, nil
}

// PrefetchCommunity resolves every community placeholder with at most limit
// fetches in flight and returns how many topics were loaded. Individual
// failures are logged and skipped; a refresh during the prefetch stops it
// with ErrStaleGeneration.
func (r *Repository) PrefetchCommunity(ctx context.Context, limit int) (int, error) {
	r.mu.RLock()
	var pending []int
	for i, e := range r.community {
		if !e.Loaded() {
			pending = append(pending, i)
		}
	}
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	var loaded atomic.Int64
	for _, i := range pending {
		i := i
		g.Go(func() error {
			_, err := r.ResolveCommunity(gctx, i)
			switch {
			case err == nil:
				loaded.Add(1)
			case errors.Is(err, ErrStaleGeneration), gctx.Err() != nil:
				return err
			default:
				r.log.Warn("prefetch skipped topic", "index", i, "error", err)
			}
			return nil
		})
	}
	err := g.Wait()
	return int(loaded.Load()), err
}
