package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
	"github.com/queueforge/ciqueue/internal/queueclock"
	"github.com/queueforge/ciqueue/internal/resource"
)

type stubResolver struct {
	tasks map[string]*stubTask
}

func (r *stubResolver) ResolveTask(name string) (ciqtask.Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.txt")

	clock := queueclock.NewFake(time.Unix(0, 0))
	resolver := &stubResolver{tasks: map[string]*stubTask{
		"proj-a": {key: "proj-a"},
		"proj-b": {key: "proj-b"},
	}}
	q1 := New(clock, resource.NewController(), &stubEnv{}, resolver, time.Second)
	q1.Add(resolver.tasks["proj-a"], 0)
	q1.Add(resolver.tasks["proj-b"], 0)

	if err := q1.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	q2 := New(clock, resource.NewController(), &stubEnv{}, resolver, time.Second)
	q2.Load(path)

	if !q2.Contains(resolver.tasks["proj-a"]) || !q2.Contains(resolver.tasks["proj-b"]) {
		t.Fatalf("expected both tasks present after reload")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected queue file removed after a successful load")
	}
}

func TestLoadSkipsUnresolvableTaskNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.txt")
	if err := os.WriteFile(path, []byte("known\nghost\n"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	clock := queueclock.NewFake(time.Unix(0, 0))
	resolver := &stubResolver{tasks: map[string]*stubTask{"known": {key: "known"}}}
	q := New(clock, resource.NewController(), &stubEnv{}, resolver, time.Second)
	q.Load(path)

	if !q.Contains(resolver.tasks["known"]) {
		t.Fatalf("expected the resolvable task loaded")
	}
	if q.waiting.len() != 1 {
		t.Fatalf("expected only one item loaded, got %d", q.waiting.len())
	}
}

func TestLoadMissingFileIsSilentNoop(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q := New(clock, resource.NewController(), &stubEnv{}, nil, time.Second)
	q.Load(filepath.Join(t.TempDir(), "missing.txt"))
	if !q.IsEmpty() {
		t.Fatalf("expected queue to remain empty after loading a missing file")
	}
}

type stubFallback struct {
	names []string
	err   error
}

func (f *stubFallback) ListNames(ctx context.Context) ([]string, error) {
	return f.names, f.err
}

func TestLoadOrFallbackUsesFallbackWhenFileAbsent(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	resolver := &stubResolver{tasks: map[string]*stubTask{"proj-a": {key: "proj-a"}}}
	q := New(clock, resource.NewController(), &stubEnv{}, resolver, time.Second)

	fallback := &stubFallback{names: []string{"proj-a"}}
	q.LoadOrFallback(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), fallback)

	if !q.Contains(resolver.tasks["proj-a"]) {
		t.Fatalf("expected fallback-sourced task loaded")
	}
}

func TestLoadOrFallbackPrefersFileWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.txt")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	clock := queueclock.NewFake(time.Unix(0, 0))
	resolver := &stubResolver{tasks: map[string]*stubTask{
		"from-file":     {key: "from-file"},
		"from-fallback": {key: "from-fallback"},
	}}
	q := New(clock, resource.NewController(), &stubEnv{}, resolver, time.Second)
	fallback := &stubFallback{names: []string{"from-fallback"}}

	q.LoadOrFallback(context.Background(), path, fallback)

	if !q.Contains(resolver.tasks["from-file"]) {
		t.Fatalf("expected the file's contents to win over the fallback")
	}
	if q.Contains(resolver.tasks["from-fallback"]) {
		t.Fatalf("expected the fallback not consulted when the file exists")
	}
}
