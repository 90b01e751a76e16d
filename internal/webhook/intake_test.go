package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/github"
	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/state"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	reqs []*ProjectRequest
	err  error
}

func (d *fakeDispatcher) Enqueue(req *ProjectRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

func (d *fakeDispatcher) requests() []*ProjectRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ProjectRequest(nil), d.reqs...)
}

type fakeFetcher struct {
	content string
	err     error
	urls    []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.content, f.err
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordWebhook(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[status]++
}

var fixedNow = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

type intakeFixture struct {
	intake     *Intake
	state      *state.Manager
	dispatcher *fakeDispatcher
	fetcher    *fakeFetcher
	recorder   *countingRecorder
	dir        string
	clock      *time.Time
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()
	f := &intakeFixture{
		dispatcher: &fakeDispatcher{},
		fetcher:    &fakeFetcher{},
		recorder:   &countingRecorder{},
		dir:        t.TempDir(),
	}
	clock := fixedNow
	f.clock = &clock
	nowFn := func() time.Time { return *f.clock }

	f.state = state.NewManager(f.dir, 5*time.Minute, zerolog.Nop(), state.WithClock(nowFn))
	in, err := NewIntake(IntakeConfig{
		State:      f.state,
		Dispatcher: f.dispatcher,
		Adapter:    NewAdapter(f.fetcher, zerolog.Nop()),
		Recorder:   f.recorder,
		Now:        nowFn,
	}, zerolog.Nop())
	require.NoError(t, err)
	f.intake = in
	return f
}

func payload(name, ts string) map[string]any {
	return map[string]any{
		"project_name":         name,
		"requirements_summary": "build a blog",
		"timestamp":            ts,
	}
}

func TestIntake_Accepts(t *testing.T) {
	f := newIntakeFixture(t)

	resp := f.intake.Handle(context.Background(), map[string]any{
		"project_name":             "My Cool App!!",
		"requirements_summary":     "build a blog",
		"template_hint":            "nextjs-blog",
		"github_repo":              "acme/cool",
		"progress_tracker_content": "# Project: Cool",
		"starter_prompt":           "go",
		"timestamp":                "2025-04-02T09:00:00Z",
	})

	require.Equal(t, 202, resp.Status)
	wantID := state.GenerateRequestID("My Cool App!!", "2025-04-02T09:00:00Z")
	assert.Equal(t, "accepted", resp.Body["status"])
	assert.Equal(t, "my-cool-app", resp.Body["project_name"])
	assert.Equal(t, wantID, resp.Body["request_id"])
	assert.Equal(t, 5.0, resp.Body["cooldown_minutes"])
	assert.Equal(t, "Creating tmux session for my-cool-app", resp.Body["message"])

	reqs := f.dispatcher.requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, wantID, req.RequestID)
	assert.Equal(t, "my-cool-app", req.ProjectName)
	assert.Equal(t, "My Cool App!!", req.RawProjectName)
	assert.Equal(t, "nextjs-blog", req.TemplateHint)
	assert.Equal(t, "acme/cool", req.RepoReference())
	assert.Equal(t, "# Project: Cool", req.TrackerContent)
	assert.Equal(t, fixedNow, req.ReceivedAt)

	assert.True(t, f.state.IsDuplicate(wantID))
	assert.False(t, f.state.IsInCooldown("my-cool-app"), "cooldown starts only after a successful launch")
	assert.Equal(t, 1, f.recorder.counts[StatusAccepted])
}

func TestIntake_DuplicateSpawnsOnce(t *testing.T) {
	f := newIntakeFixture(t)

	first := f.intake.Handle(context.Background(), payload("demo", "t1"))
	second := f.intake.Handle(context.Background(), payload("demo", "t1"))

	assert.Equal(t, 202, first.Status)
	assert.Equal(t, 409, second.Status)
	assert.Equal(t, "duplicate", second.Body["status"])
	assert.Equal(t, "Request already processed", second.Body["message"])
	assert.Equal(t, first.Body["request_id"], second.Body["request_id"])
	assert.Len(t, f.dispatcher.requests(), 1)
}

func TestIntake_DuplicateCheckedBeforeValidation(t *testing.T) {
	f := newIntakeFixture(t)
	f.state.MarkProcessed(state.GenerateRequestID("demo", "t1"), "demo")

	resp := f.intake.Handle(context.Background(), map[string]any{"project_name": "demo", "timestamp": "t1"})
	assert.Equal(t, 409, resp.Status)
}

func TestIntake_MissingFields(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		missing []string
	}{
		{"nothing", map[string]any{}, []string{"project_name", "requirements_summary"}},
		{"empty requirements", map[string]any{"project_name": "demo", "requirements_summary": ""}, []string{"requirements_summary"}},
		{"null name", map[string]any{"project_name": nil, "requirements_summary": "x"}, []string{"project_name"}},
		{"name normalizes to empty", map[string]any{"project_name": "!!!", "requirements_summary": "x"}, []string{"project_name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIntakeFixture(t)
			resp := f.intake.Handle(context.Background(), tt.data)

			require.Equal(t, 400, resp.Status)
			assert.Equal(t, tt.missing, resp.Body["missing_fields"])
			assert.Contains(t, resp.Body["error"], "Missing required fields: [")
			assert.NotEmpty(t, resp.Body["request_id"])
			assert.Empty(t, f.dispatcher.requests())
		})
	}
}

func TestIntake_Cooldown(t *testing.T) {
	f := newIntakeFixture(t)
	f.state.SetCooldown("demo")
	*f.clock = fixedNow.Add(90 * time.Second)

	resp := f.intake.Handle(context.Background(), payload("Demo", "t2"))

	require.Equal(t, 429, resp.Status)
	assert.Equal(t, "cooldown", resp.Body["status"])
	assert.Equal(t, "demo", resp.Body["project_name"])
	remaining := resp.Body["cooldown_remaining_minutes"].(float64)
	assert.Equal(t, 3.5, remaining)
	assert.Empty(t, f.dispatcher.requests())
	assert.False(t, f.state.IsDuplicate(resp.Body["request_id"].(string)), "rejected requests are not marked")

	*f.clock = fixedNow.Add(6 * time.Minute)
	assert.Equal(t, 202, f.intake.Handle(context.Background(), payload("Demo", "t2")).Status)
}

func TestIntake_QueueUnavailableRollsBack(t *testing.T) {
	for _, qerr := range []error{ErrQueueFull, ErrQueueClosed} {
		t.Run(qerr.Error(), func(t *testing.T) {
			f := newIntakeFixture(t)
			f.dispatcher.err = qerr

			resp := f.intake.Handle(context.Background(), payload("demo", "t1"))
			require.Equal(t, 503, resp.Status)
			assert.False(t, f.state.IsDuplicate(resp.Body["request_id"].(string)))

			f.dispatcher.err = nil
			assert.Equal(t, 202, f.intake.Handle(context.Background(), payload("demo", "t1")).Status)
		})
	}
}

func TestIntake_DispatchErrorIs500(t *testing.T) {
	f := newIntakeFixture(t)
	f.dispatcher.err = errors.New("boom")

	resp := f.intake.Handle(context.Background(), payload("demo", "t1"))
	assert.Equal(t, 500, resp.Status)
	assert.Equal(t, "boom", resp.Body["error"])
	assert.NotEmpty(t, resp.Body["request_id"])
}

func TestIntake_TimestampPrecedence(t *testing.T) {
	f := newIntakeFixture(t)

	resp := f.intake.Handle(context.Background(), map[string]any{
		"project_name":         "demo",
		"requirements_summary": "x",
		"original_timestamp":   "orig",
		"timestamp":            "plain",
	})
	assert.Equal(t, state.GenerateRequestID("demo", "orig"), resp.Body["request_id"])

	resp = f.intake.Handle(context.Background(), map[string]any{
		"project_name":         "demo",
		"requirements_summary": "x",
	})
	assert.Equal(t, state.GenerateRequestID("demo", fixedNow.Format(time.RFC3339Nano)), resp.Body["request_id"])
}

func TestIntake_IdeabrowPayload(t *testing.T) {
	f := newIntakeFixture(t)
	f.fetcher.content = "# Project: Idea App\n\n## Phase 1: Setup\n- [ ] Scaffold pages\n"

	resp := f.intake.Handle(context.Background(), map[string]any{
		"project_name":         "Idea App",
		"repo_url":             "https://github.com/org/idea-app",
		"tracker_url":          "https://github.com/org/idea-app/blob/main/PROGRESS_TRACKER.md",
		"requirements_summary": "A todo app",
		"timestamp":            "2025-05-01T10:00:00Z",
	})

	require.Equal(t, 202, resp.Status)
	assert.Equal(t, state.GenerateRequestID("Idea App", "2025-05-01T10:00:00Z"), resp.Body["request_id"])
	assert.Equal(t, []string{"https://github.com/org/idea-app/blob/main/PROGRESS_TRACKER.md"}, f.fetcher.urls)

	req := f.dispatcher.requests()[0]
	assert.Equal(t, "idea-app", req.ProjectName)
	assert.Equal(t, "org/idea-app", req.GitHubRepo)
	assert.Equal(t, "git@github.com:org/idea-app.git", req.RepoReference())
	assert.Equal(t, f.fetcher.content, req.TrackerContent)
	assert.Contains(t, req.RequirementsSummary, "A todo app Tech stack: Next.js 14+")
	assert.Contains(t, req.StarterPrompt, "Idea App")
}

func TestIntake_IdeabrowFetchFailureStillAccepts(t *testing.T) {
	f := newIntakeFixture(t)
	f.fetcher.err = errors.New("404")

	resp := f.intake.Handle(context.Background(), map[string]any{
		"repo_url":             "https://github.com/org/x",
		"tracker_url":          "https://example.com/tracker.md",
		"requirements_summary": "Tech stack: Go",
	})

	require.Equal(t, 202, resp.Status)
	req := f.dispatcher.requests()[0]
	assert.Equal(t, "unnamed-project", req.ProjectName)
	assert.Empty(t, req.TrackerContent)
	assert.Equal(t, "Tech stack: Go", req.RequirementsSummary)
}

func TestIntake_IdeabrowFetchIsSinglePass(t *testing.T) {
	var gets atomic.Int32
	tracker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer tracker.Close()

	dir := t.TempDir()
	d := &fakeDispatcher{}
	fetcher := github.NewContentFetcher(nil, tracker.Client(), zerolog.Nop()).WithAttempts(1)
	in, err := NewIntake(IntakeConfig{
		State:      state.NewManager(dir, 5*time.Minute, zerolog.Nop()),
		Dispatcher: d,
		Adapter:    NewAdapter(fetcher, zerolog.Nop()),
	}, zerolog.Nop())
	require.NoError(t, err)

	resp := in.Handle(context.Background(), map[string]any{
		"project_name":         "Idea App",
		"repo_url":             "https://github.com/org/idea-app",
		"tracker_url":          tracker.URL + "/PROGRESS_TRACKER.md",
		"requirements_summary": "A todo app",
		"timestamp":            "2025-05-01T10:00:00Z",
	})

	require.Equal(t, 202, resp.Status)
	assert.Equal(t, int32(1), gets.Load())
	require.Len(t, d.requests(), 1)
	assert.Empty(t, d.requests()[0].TrackerContent)
}

func TestIntake_ConcurrentDistinctRequests(t *testing.T) {
	f := newIntakeFixture(t)
	const n = 40

	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = f.intake.Handle(context.Background(), payload(fmt.Sprintf("proj-%d", i), "t")).Status
		}(i)
	}
	wg.Wait()

	for i, s := range statuses {
		assert.Equal(t, 202, s, "request %d", i)
	}
	assert.Len(t, f.dispatcher.requests(), n)

	raw, err := os.ReadFile(filepath.Join(f.dir, "processed_requests.json"))
	require.NoError(t, err)
	var persisted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Len(t, persisted, n)
}

func TestIntake_ConcurrentIdenticalRequests(t *testing.T) {
	f := newIntakeFixture(t)
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[int]int{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := f.intake.Handle(context.Background(), payload("demo", "same")).Status
			mu.Lock()
			counts[s]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, counts[202])
	assert.Equal(t, n-1, counts[409])
	assert.Len(t, f.dispatcher.requests(), 1)
}

func TestNewIntake_Validation(t *testing.T) {
	_, err := NewIntake(IntakeConfig{}, zerolog.Nop())
	assert.Error(t, err)
}
