package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/parser"
)

const sampleContent = `S1Q1="Who?",S1Q1A1="A",S1Q1A2="B",S1Q1A3="C",S1Q1A4="D",S1Q1Ans=1`

func intPtr(i int) *int { return &i }

func sampleQuiz() model.Quiz {
	return model.Quiz{Sets: [][]model.Question{
		{model.NewQuestion("Who?", []string{"A", "B", "C", "D"}, intPtr(1))},
	}}
}

func topic(name string) model.TopicEntry {
	return model.TopicEntry{Name: name, Quiz: sampleQuiz()}
}

// memStore is an in-memory SavedStore.
type memStore struct {
	mu      sync.Mutex
	entries []model.TopicEntry
	writes  int
	fail    error
}

func (s *memStore) LoadSavedTopics() ([]model.TopicEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TopicEntry(nil), s.entries...), nil
}

func (s *memStore) ReplaceSavedTopics(entries []model.TopicEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.writes++
	s.entries = append([]model.TopicEntry(nil), entries...)
	return nil
}

// fakeFetcher serves a fixed manifest and content by URL. When gate is set,
// content fetches block until it is closed.
type fakeFetcher struct {
	mu          sync.Mutex
	manifest    []model.ManifestEntry
	manifestErr error
	contents    map[string]string
	errs        map[string]error

	gate    chan struct{}
	started chan string
	calls   atomic.Int32
}

func (f *fakeFetcher) FetchManifest(ctx context.Context) ([]model.ManifestEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	return append([]model.ManifestEntry(nil), f.manifest...), nil
}

func (f *fakeFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- url:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return "", err
	}
	content, ok := f.contents[url]
	if !ok {
		return "", errors.New("not found")
	}
	return content, nil
}

func (f *fakeFetcher) setError(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, url)
		return
	}
	f.errs[url] = err
}

func newFetcher(names ...string) *fakeFetcher {
	f := &fakeFetcher{contents: make(map[string]string), errs: make(map[string]error)}
	for _, n := range names {
		u := "https://example.com/" + n
		f.manifest = append(f.manifest, model.ManifestEntry{Name: n, RemoteURL: u})
		f.contents[u] = sampleContent
	}
	return f
}

func newTestRepo(t *testing.T, store SavedStore, fetcher Fetcher) *Repository {
	t.Helper()
	app := []model.TopicEntry{topic("Social"), topic("Technology")}
	r, err := New(app, store, fetcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func names(entries []model.TopicEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestNewLoadsSavedTopics(t *testing.T) {
	store := &memStore{entries: []model.TopicEntry{topic("Geo"), topic("Geo"), topic(" "), topic("Art")}}
	r := newTestRepo(t, store, nil)

	got := names(r.List(model.ModeSaved))
	if len(got) != 2 || got[0] != "Geo" || got[1] != "Art" {
		t.Errorf("saved = %v, want [Geo Art]", got)
	}
	for _, e := range r.List(model.ModeApp) {
		if e.Provenance != model.ModeApp || !e.Loaded() {
			t.Errorf("app entry %q: provenance %q state %q", e.Name, e.Provenance, e.State)
		}
	}
	if n := len(r.List(model.ModeCommunity)); n != 0 {
		t.Errorf("expected empty community, got %d", n)
	}
}

func TestListUnknownModeAndTopic(t *testing.T) {
	r := newTestRepo(t, nil, nil)

	if got := r.List(model.Mode("bogus")); len(got) != 0 {
		t.Errorf("List(bogus) = %v", got)
	}
	if _, err := r.Topic(model.Mode("bogus"), 0); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Topic(bogus) error = %v", err)
	}
	if _, err := r.Topic(model.ModeApp, 2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Topic(app, 2) error = %v", err)
	}
	e, err := r.Topic(model.ModeApp, 1)
	if err != nil || e.Name != "Technology" {
		t.Errorf("Topic(app, 1) = %q, %v", e.Name, err)
	}
}

func TestListReturnsSnapshot(t *testing.T) {
	r := newTestRepo(t, nil, nil)

	list := r.List(model.ModeApp)
	list[0].Name = "changed"
	list[0].Quiz.Sets[0][0].Text = "changed"

	e, _ := r.Topic(model.ModeApp, 0)
	if e.Name != "Social" || e.Quiz.Sets[0][0].Text != "Who?" {
		t.Errorf("repository mutated through snapshot: %+v", e)
	}
}

func TestSaveDuplicateName(t *testing.T) {
	store := &memStore{}
	r := newTestRepo(t, store, nil)

	if err := r.Save(topic("Geo")); err != nil {
		t.Fatalf("Save(Geo): %v", err)
	}
	err := r.Save(topic("Geo"))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second Save(Geo) error = %v, want ErrDuplicateName", err)
	}
	if got := r.List(model.ModeSaved); len(got) != 1 {
		t.Errorf("expected 1 saved topic, got %d", len(got))
	}
	if store.writes != 1 {
		t.Errorf("expected 1 store write, got %d", store.writes)
	}

	// App topic names do not collide with saved ones.
	if err := r.Save(topic("Social")); err != nil {
		t.Errorf("Save(Social): %v", err)
	}
}

func TestSaveValidation(t *testing.T) {
	r := newTestRepo(t, nil, nil)

	tests := []struct {
		name    string
		entry   model.TopicEntry
		wantErr error
	}{
		{"blank name", topic("  "), ErrEmptyName},
		{"empty quiz", model.TopicEntry{Name: "Empty"}, parser.ErrEmptyOrUnrecognized},
		{"one answer", model.TopicEntry{Name: "One", Quiz: model.Quiz{Sets: [][]model.Question{
			{model.NewQuestion("Q?", []string{"A"}, intPtr(0))},
		}}}, parser.ErrInsufficientAnswers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Save(tt.entry); !errors.Is(err, tt.wantErr) {
				t.Errorf("Save() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if got := r.List(model.ModeSaved); len(got) != 0 {
		t.Errorf("expected nothing saved, got %v", names(got))
	}
}

func TestSaveRollsBackOnPersistFailure(t *testing.T) {
	store := &memStore{}
	r := newTestRepo(t, store, nil)
	if err := r.Save(topic("Geo")); err != nil {
		t.Fatalf("Save(Geo): %v", err)
	}

	boom := errors.New("disk full")
	store.fail = boom
	if err := r.Save(topic("Art")); !errors.Is(err, boom) {
		t.Fatalf("Save(Art) error = %v, want %v", err, boom)
	}
	if got := names(r.List(model.ModeSaved)); len(got) != 1 || got[0] != "Geo" {
		t.Errorf("saved = %v, want [Geo]", got)
	}
	if err := r.RemoveSaved("Geo"); !errors.Is(err, boom) {
		t.Fatalf("RemoveSaved error = %v, want %v", err, boom)
	}
	if got := r.List(model.ModeSaved); len(got) != 1 {
		t.Errorf("expected Geo kept after failed removal, got %v", names(got))
	}

	store.fail = nil
	if err := r.Save(topic("Art")); err != nil {
		t.Errorf("Save(Art) after recovery: %v", err)
	}
}

func TestRemoveSavedIsIdempotent(t *testing.T) {
	store := &memStore{}
	r := newTestRepo(t, store, nil)
	for _, n := range []string{"Geo", "Art", "Sea"} {
		if err := r.Save(topic(n)); err != nil {
			t.Fatalf("Save(%s): %v", n, err)
		}
	}

	if err := r.RemoveSaved("Art", "Nope"); err != nil {
		t.Fatalf("RemoveSaved: %v", err)
	}
	writes := store.writes
	if err := r.RemoveSaved("Art", "Nope"); err != nil {
		t.Fatalf("second RemoveSaved: %v", err)
	}
	if store.writes != writes {
		t.Errorf("no-op removal wrote to store")
	}
	if got := names(r.List(model.ModeSaved)); len(got) != 2 || got[0] != "Geo" || got[1] != "Sea" {
		t.Errorf("saved = %v, want [Geo Sea]", got)
	}
	if got := names(store.entries); len(got) != 2 {
		t.Errorf("store = %v, want 2 entries", got)
	}
}

func TestRemoveSavedAt(t *testing.T) {
	r := newTestRepo(t, &memStore{}, nil)
	for _, n := range []string{"Geo", "Art", "Sea"} {
		if err := r.Save(topic(n)); err != nil {
			t.Fatalf("Save(%s): %v", n, err)
		}
	}

	if err := r.RemoveSavedAt(2, 0, 0, 7, -1); err != nil {
		t.Fatalf("RemoveSavedAt: %v", err)
	}
	if got := names(r.List(model.ModeSaved)); len(got) != 1 || got[0] != "Art" {
		t.Errorf("saved = %v, want [Art]", got)
	}
}

func TestRefreshCommunity(t *testing.T) {
	f := newFetcher("Geo", "Art")
	r := newTestRepo(t, nil, f)

	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}
	list := r.List(model.ModeCommunity)
	if got := names(list); len(got) != 2 || got[0] != "Geo" || got[1] != "Art" {
		t.Fatalf("community = %v", got)
	}
	for _, e := range list {
		if e.State != model.StatePlaceholder || e.Provenance != model.ModeCommunity || !e.Quiz.IsEmpty() {
			t.Errorf("entry %q not a placeholder: %+v", e.Name, e)
		}
	}
	if f.calls.Load() != 0 {
		t.Errorf("refresh fetched content")
	}

	f.manifestErr = errors.New("offline")
	gen := r.Generation()
	if err := r.RefreshCommunity(context.Background()); err == nil {
		t.Fatal("expected manifest error")
	}
	if r.Generation() != gen+1 {
		t.Errorf("generation not bumped on failed refresh")
	}
	if got := r.List(model.ModeCommunity); len(got) != 0 {
		t.Errorf("expected cleared community after failed refresh, got %v", names(got))
	}
}

func TestRefreshCommunityWithoutFetcher(t *testing.T) {
	r := newTestRepo(t, nil, nil)
	if err := <-r.RefreshCommunityAsync(context.Background()); !errors.Is(err, ErrNoCommunitySource) {
		t.Errorf("RefreshCommunityAsync() = %v, want ErrNoCommunitySource", err)
	}
}

func TestResolveCommunityFetchesOnce(t *testing.T) {
	f := newFetcher("Geo")
	f.gate = make(chan struct{})
	r := newTestRepo(t, nil, f)
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quiz, err := r.ResolveCommunity(context.Background(), 0)
			if err == nil && !quiz.Equal(sampleQuiz()) {
				err = errors.New("unexpected quiz")
			}
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ResolveCommunity: %v", err)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
	e, _ := r.Topic(model.ModeCommunity, 0)
	if e.State != model.StatePopulated {
		t.Errorf("state = %q, want populated", e.State)
	}

	if _, err := r.ResolveCommunity(context.Background(), 0); err != nil {
		t.Fatalf("ResolveCommunity after populate: %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("populated topic fetched again, %d fetches", n)
	}
}

func TestResolveCommunityStaleGeneration(t *testing.T) {
	f := newFetcher("Geo")
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	r := newTestRepo(t, nil, f)
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.ResolveCommunity(context.Background(), 0)
		done <- err
	}()
	<-f.started

	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("second RefreshCommunity: %v", err)
	}
	close(f.gate)

	if err := <-done; !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("ResolveCommunity error = %v, want ErrStaleGeneration", err)
	}
	e, err := r.Topic(model.ModeCommunity, 0)
	if err != nil {
		t.Fatalf("Topic: %v", err)
	}
	if e.State != model.StatePlaceholder || !e.Quiz.IsEmpty() {
		t.Errorf("stale result leaked into new generation: %+v", e)
	}
}

func TestResolveCommunityRetriesAfterFailure(t *testing.T) {
	f := newFetcher("Geo", "Bad")
	f.contents["https://example.com/Bad"] = "nothing here"
	offline := errors.New("offline")
	f.setError("https://example.com/Geo", offline)
	r := newTestRepo(t, nil, f)
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	if _, err := r.ResolveCommunity(context.Background(), 0); !errors.Is(err, offline) {
		t.Fatalf("ResolveCommunity error = %v, want %v", err, offline)
	}
	if e, _ := r.Topic(model.ModeCommunity, 0); e.State != model.StatePlaceholder {
		t.Errorf("state after failure = %q, want placeholder", e.State)
	}

	f.setError("https://example.com/Geo", nil)
	if _, err := r.ResolveCommunity(context.Background(), 0); err != nil {
		t.Fatalf("retry: %v", err)
	}

	if _, err := r.ResolveCommunity(context.Background(), 1); !errors.Is(err, parser.ErrEmptyOrUnrecognized) {
		t.Errorf("ResolveCommunity(Bad) error = %v, want ErrEmptyOrUnrecognized", err)
	}
	if _, err := r.ResolveCommunity(context.Background(), 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("ResolveCommunity(5) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestResolveCommunityCallerCancel(t *testing.T) {
	f := newFetcher("Geo")
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)
	r := newTestRepo(t, nil, f)
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.ResolveCommunity(ctx, 0)
		done <- err
	}()
	<-f.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("ResolveCommunity error = %v, want context.Canceled", err)
	}

	// The fetch keeps running for other callers.
	close(f.gate)
	if _, err := r.ResolveCommunity(context.Background(), 0); err != nil {
		t.Fatalf("ResolveCommunity: %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("expected 1 fetch, got %d", n)
	}
}

func TestPrefetchCommunity(t *testing.T) {
	f := newFetcher("Geo", "Bad", "Art")
	f.contents["https://example.com/Bad"] = "S1Q1=\"only text\""
	r := newTestRepo(t, nil, f)
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	loaded, err := r.PrefetchCommunity(context.Background(), 2)
	if err != nil {
		t.Fatalf("PrefetchCommunity: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}
	states := make(map[string]model.CommunityState)
	for _, e := range r.List(model.ModeCommunity) {
		states[e.Name] = e.State
	}
	if states["Geo"] != model.StatePopulated || states["Art"] != model.StatePopulated || states["Bad"] != model.StatePlaceholder {
		t.Errorf("states = %v", states)
	}
}

func TestSaveFromInput(t *testing.T) {
	f := newFetcher()
	f.contents["https://example.com/geo.txt"] = sampleContent
	r := newTestRepo(t, &memStore{}, f)
	ctx := context.Background()

	if err := r.SaveFromInput(ctx, "From URL", " https://example.com/geo.txt\n"); err != nil {
		t.Fatalf("SaveFromInput(url): %v", err)
	}
	if err := r.SaveFromInput(ctx, "From text", sampleContent); err != nil {
		t.Fatalf("SaveFromInput(text): %v", err)
	}
	payload, err := parser.SerializeStructured(sampleQuiz())
	if err != nil {
		t.Fatalf("SerializeStructured: %v", err)
	}
	if err := r.SaveFromInput(ctx, "From JSON", payload); err != nil {
		t.Fatalf("SaveFromInput(json): %v", err)
	}
	for _, e := range r.List(model.ModeSaved) {
		if !e.Quiz.Equal(sampleQuiz()) {
			t.Errorf("topic %q quiz mismatch", e.Name)
		}
	}

	if err := r.SaveFromInput(ctx, "Missing", "https://example.com/missing"); err == nil {
		t.Error("expected error for unreachable URL")
	}
	if err := r.SaveFromInput(ctx, "Junk", "hello world"); !errors.Is(err, parser.ErrEmptyOrUnrecognized) {
		t.Errorf("SaveFromInput(junk) error = %v", err)
	}
	if err := r.SaveFromInput(ctx, "From text", sampleContent); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("SaveFromInput(dup) error = %v", err)
	}
	if got := len(r.List(model.ModeSaved)); got != 3 {
		t.Errorf("expected 3 saved topics, got %d", got)
	}
}

func TestExport(t *testing.T) {
	r := newTestRepo(t, nil, newFetcher("Geo"))
	if err := r.RefreshCommunity(context.Background()); err != nil {
		t.Fatalf("RefreshCommunity: %v", err)
	}

	payload, err := r.Export(model.ModeApp, 0)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	quiz, err := parser.ParseStructured(payload)
	if err != nil {
		t.Fatalf("ParseStructured: %v", err)
	}
	if !quiz.Equal(sampleQuiz()) {
		t.Errorf("exported quiz mismatch")
	}

	if _, err := r.Export(model.ModeCommunity, 0); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Export(placeholder) error = %v, want ErrNotLoaded", err)
	}

	for _, n := range []string{"Geo", "Art"} {
		if err := r.Save(topic(n)); err != nil {
			t.Fatalf("Save(%s): %v", n, err)
		}
	}
	exports, err := r.ExportSaved(1, 0)
	if err != nil {
		t.Fatalf("ExportSaved: %v", err)
	}
	if len(exports) != 2 || exports[0].Name != "Art" || exports[1].Name != "Geo" || exports[0].Payload != payload {
		t.Errorf("ExportSaved() = %+v", exports)
	}
	if _, err := r.ExportSaved(0, 9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("ExportSaved(9) error = %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	r := newTestRepo(t, nil, newFetcher("Geo"))
	events, cancel := r.Subscribe()

	if err := r.Save(topic("Geo")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case m := <-events:
		if m != model.ModeSaved {
			t.Errorf("event = %q, want saved", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after Save")
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Error("channel still open after cancel")
	}
	if err := r.RemoveSaved("Geo"); err != nil {
		t.Errorf("RemoveSaved after unsubscribe: %v", err)
	}
}
