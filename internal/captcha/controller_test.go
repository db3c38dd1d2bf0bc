package captcha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ashureev/formcaptcha/internal/domain"
)

// fakeStore is an in-memory Store with per-key locks and call counters.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]domain.ChallengeState
	saves   int
	loadErr error

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]domain.ChallengeState),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (f *fakeStore) Load(_ context.Context, key string) (*domain.ChallengeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	state, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (f *fakeStore) Save(_ context.Context, key string, state domain.ChallengeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[key] = state
	f.saves++
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, key)
	return nil
}

func (f *fakeStore) Lock(key string) func() {
	f.locksMu.Lock()
	m, ok := f.locks[key]
	if !ok {
		m = &sync.Mutex{}
		f.locks[key] = m
	}
	f.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

func (f *fakeStore) record(key string) (domain.ChallengeState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.records[key]
	return state, ok
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// sequenceGenerator returns q1/a1, q2/a2, ... and counts calls.
type sequenceGenerator struct {
	calls atomic.Int32
}

func (g *sequenceGenerator) Generate(context.Context) (string, string, error) {
	n := g.calls.Add(1)
	return fmt.Sprintf("q%d", n), fmt.Sprintf("a%d", n), nil
}

func TestControllerScenario(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := NewController("f1-q1-data", store, Static("2+2=?", "4"), nil)

	if err := c.EnsureGenerated(ctx); err != nil {
		t.Fatalf("EnsureGenerated failed: %v", err)
	}
	got, ok := store.record("f1-q1-data")
	if !ok {
		t.Fatal("expected record after EnsureGenerated")
	}
	if want := (domain.ChallengeState{Question: "2+2=?", Answer: "4"}); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	solved, err := c.Verify(ctx, "4")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !solved {
		t.Fatal("expected correct answer to solve the challenge")
	}
	if got, _ := store.record("f1-q1-data"); !got.Solved {
		t.Fatal("expected stored record to be solved")
	}

	solved, err = c.Verify(ctx, "9")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !solved {
		t.Fatal("expected solved state to be sticky within the request")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := store.record("f1-q1-data"); ok {
		t.Fatal("expected record to be absent after Clear")
	}
	if c.Generated() || c.Solved() {
		t.Fatal("expected controller to be reset after Clear")
	}
}

func TestControllerSolvedStaysSolvedAcrossRequests(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	first := NewController("k", store, gen, nil)
	if ok, err := first.Verify(ctx, "a1"); err != nil || !ok {
		t.Fatalf("expected first request to solve, got ok=%v err=%v", ok, err)
	}

	next := NewController("k", store, gen, nil)
	ok, err := next.Verify(ctx, "")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected next request to see the solved challenge")
	}
	if gen.calls.Load() != 1 {
		t.Fatalf("expected one generator call, got %d", gen.calls.Load())
	}
}

func TestControllerWrongAnswerKeepsQuestion(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	var question string
	for i := 0; i < 3; i++ {
		c := NewController("k", store, gen, nil)
		ok, err := c.Verify(ctx, "wrong")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if ok {
			t.Fatal("expected wrong answer to fail")
		}
		q, err := c.Question(ctx)
		if err != nil {
			t.Fatalf("Question failed: %v", err)
		}
		if question == "" {
			question = q
		} else if q != question {
			t.Fatalf("expected stable question %q, got %q", question, q)
		}
	}

	got, _ := store.record("k")
	if got.Solved {
		t.Fatal("expected stored record to remain unsolved")
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected only the generation write, got %d saves", store.saveCount())
	}
}

func TestControllerClearRegenerates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	c := NewController("k", store, gen, nil)
	if ok, _ := c.Verify(ctx, "a1"); !ok {
		t.Fatal("expected a1 to solve")
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	fresh := NewController("k", store, gen, nil)
	if err := fresh.EnsureGenerated(ctx); err != nil {
		t.Fatalf("EnsureGenerated failed: %v", err)
	}
	if fresh.Solved() {
		t.Fatal("expected regenerated challenge to be unsolved")
	}
	if got := fresh.State(); got.Question != "q2" || got.Answer != "a2" {
		t.Fatalf("expected fresh challenge q2/a2, got %+v", got)
	}
}

func TestControllerEnsureGeneratedOncePerController(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}
	c := NewController("k", store, gen, nil)

	for i := 0; i < 3; i++ {
		if err := c.EnsureGenerated(ctx); err != nil {
			t.Fatalf("EnsureGenerated failed: %v", err)
		}
	}
	if gen.calls.Load() != 1 {
		t.Fatalf("expected 1 generator call, got %d", gen.calls.Load())
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected 1 save, got %d", store.saveCount())
	}
}

func TestControllerWithoutSessionFailsFast(t *testing.T) {
	ctx := context.Background()
	c := NewController("k", nil, Static("q", "a"), nil)

	if err := c.EnsureGenerated(ctx); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("EnsureGenerated: expected ErrSessionNotStarted, got %v", err)
	}
	if _, err := c.Verify(ctx, "a"); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("Verify: expected ErrSessionNotStarted, got %v", err)
	}
	if err := c.Clear(ctx); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("Clear: expected ErrSessionNotStarted, got %v", err)
	}
	if _, err := c.QuestionFragment(ctx, nil); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Fatalf("QuestionFragment: expected ErrSessionNotStarted, got %v", err)
	}
}

func TestControllerStoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("disk on fire")
	c := NewController("k", store, Static("q", "a"), nil)

	if _, err := c.Verify(context.Background(), "a"); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestControllerMissingAnswerIsWrongAnswer(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.records["k"] = domain.ChallengeState{Question: "orphan"}

	c := NewController("k", store, Static("q", "a"), nil)
	ok, err := c.Verify(ctx, "")
	if err != nil {
		t.Fatalf("expected no error for missing answer, got %v", err)
	}
	if ok {
		t.Fatal("expected missing answer to fail verification")
	}
	if store.saveCount() != 0 {
		t.Fatalf("expected no writes, got %d", store.saveCount())
	}
}

func TestControllerRejectsIncompleteGenerator(t *testing.T) {
	gen := GeneratorFunc(func(context.Context) (string, string, error) {
		return "question only", "", nil
	})
	c := NewController("k", newFakeStore(), gen, nil)

	if err := c.EnsureGenerated(context.Background()); !errors.Is(err, ErrIncompleteChallenge) {
		t.Fatalf("expected ErrIncompleteChallenge, got %v", err)
	}
	if c.Generated() {
		t.Fatal("expected controller to stay ungenerated")
	}
}

func TestControllerKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	a := NewController(SessionKey("q", fakeContainer{id: "form-a"}), store, gen, nil)
	b := NewController(SessionKey("q", fakeContainer{id: "form-b"}), store, gen, nil)

	if err := b.EnsureGenerated(ctx); err != nil {
		t.Fatalf("EnsureGenerated failed: %v", err)
	}
	before, _ := store.record(b.Key())

	if ok, _ := a.Verify(ctx, "a2"); !ok {
		t.Fatal("expected a to be solved with its own answer")
	}
	after, _ := store.record(b.Key())
	if before != after {
		t.Fatalf("solving a changed b: %+v -> %+v", before, after)
	}
}

func TestControllerConcurrentFirstRequestsGenerateOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	const workers = 20
	questions := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewController("k", store, gen, nil)
			q, err := c.Question(ctx)
			if err != nil {
				t.Errorf("Question failed: %v", err)
				return
			}
			questions[i] = q
		}(i)
	}
	wg.Wait()

	if gen.calls.Load() != 1 {
		t.Fatalf("expected a single generation, got %d", gen.calls.Load())
	}
	for i, q := range questions {
		if q != "q1" {
			t.Fatalf("worker %d saw %q, want q1", i, q)
		}
	}
}

func TestControllerVerifyAfterConcurrentClear(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	tab1 := NewController("k", store, gen, nil)
	if err := tab1.EnsureGenerated(ctx); err != nil {
		t.Fatalf("EnsureGenerated failed: %v", err)
	}

	tab2 := NewController("k", store, gen, nil)
	if err := tab2.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	ok, err := tab1.Verify(ctx, "a1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected verification against a cleared challenge to fail")
	}
	if _, exists := store.record("k"); exists {
		t.Fatal("expected cleared challenge not to be resurrected")
	}
}

func TestControllerVerifySeesConcurrentSolve(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	gen := &sequenceGenerator{}

	tab1 := NewController("k", store, gen, nil)
	if err := tab1.EnsureGenerated(ctx); err != nil {
		t.Fatalf("EnsureGenerated failed: %v", err)
	}

	tab2 := NewController("k", store, gen, nil)
	if ok, _ := tab2.Verify(ctx, "a1"); !ok {
		t.Fatal("expected tab2 to solve")
	}

	ok, err := tab1.Verify(ctx, "garbage")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected tab1 to observe the solve from tab2")
	}
	if got, _ := store.record("k"); !got.Solved {
		t.Fatal("expected stored record to stay solved")
	}
}

func TestAnswersMatch(t *testing.T) {
	tests := []struct {
		submitted, answer string
		want              bool
	}{
		{"4", "4", true},
		{" 4\n", "4", true},
		{"4", " 4 ", true},
		{"04", "4", false},
		{"4.0", "4", false},
		{"", "4", false},
		{"abc", "ABC", false},
	}
	for _, tt := range tests {
		if got := AnswersMatch(tt.submitted, tt.answer); got != tt.want {
			t.Errorf("AnswersMatch(%q, %q) = %v, want %v", tt.submitted, tt.answer, got, tt.want)
		}
	}
}
