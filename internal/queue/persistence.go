package queue

import (
	"bufio"
	"context"
	"log"
	"os"
)

// NameLister is the optional durable-mirror fallback consulted by
// LoadOrFallback when the flat-file shim finds no queue.txt (spec §4.12
// supplement; the flat file remains the primary, required format).
type NameLister interface {
	ListNames(ctx context.Context) ([]string, error)
}

// Save dumps the names of every queued item (any stage) to path, one per
// line, UTF-8, no header/trailer (spec §4.8/§6).
func (q *Queue) Save(path string) error {
	items := q.GetItems()

	f, err := os.Create(path)
	if err != nil {
		log.Printf("queue: persistence save failed: %v", err)
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, item := range items {
		if _, err := w.WriteString(item.Task.Name() + "\n"); err != nil {
			log.Printf("queue: persistence save failed writing %q: %v", item.Task.Name(), err)
			return err
		}
	}
	return w.Flush()
}

// Load reads path, schedules each resolvable task name with
// defaultQuietPeriod, and deletes the file on success (spec §4.8). A
// missing, corrupt, or partially-unreadable file is logged and otherwise
// ignored: best-effort only (spec §7).
func (q *Queue) Load(path string) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("queue: persistence load failed: %v", err)
		}
		return
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := scanner.Text()
		if name == "" {
			continue
		}
		if q.resolver == nil {
			continue
		}
		task, ok := q.resolver.ResolveTask(name)
		if !ok {
			log.Printf("queue: persistence load: unknown task %q, skipping", name)
			continue
		}
		q.AddDefault(task)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("queue: persistence load: error reading %s: %v", path, err)
		f.Close()
		return
	}
	f.Close()

	if err := os.Remove(path); err != nil {
		log.Printf("queue: persistence load: failed to delete %s after load: %v", path, err)
	}
}

// LoadOrFallback behaves like Load, except that when path does not exist it
// consults fallback (typically a Postgres mirror) for the pending task-name
// list instead of starting empty. Still best-effort: a fallback failure is
// logged and the queue simply starts empty (spec §7).
func (q *Queue) LoadOrFallback(ctx context.Context, path string, fallback NameLister) {
	if _, err := os.Stat(path); err == nil {
		q.Load(path)
		return
	}
	if fallback == nil {
		return
	}
	names, err := fallback.ListNames(ctx)
	if err != nil {
		log.Printf("queue: persistence fallback load failed: %v", err)
		return
	}
	for _, name := range names {
		if q.resolver == nil {
			return
		}
		task, ok := q.resolver.ResolveTask(name)
		if !ok {
			log.Printf("queue: persistence fallback load: unknown task %q, skipping", name)
			continue
		}
		q.AddDefault(task)
	}
}
