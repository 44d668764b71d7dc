package inbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/negotiation"
)

type fakeSource struct {
	mu       sync.Mutex
	lists    [][]Summary
	errs     []error
	calls    int
	gate     chan struct{}
	gateAt   int
	setErr   error
	archived map[string]bool
	deleted  map[string]bool
}

func newFakeSource(lists ...[]Summary) *fakeSource {
	return &fakeSource{lists: lists, archived: map[string]bool{}, deleted: map[string]bool{}}
}

func (f *fakeSource) FetchInbox(ctx context.Context, userID string) ([]Summary, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil && i == f.gateAt {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.lists) == 0 {
		return nil, nil
	}
	if i >= len(f.lists) {
		i = len(f.lists) - 1
	}
	return f.lists[i], nil
}

func (f *fakeSource) SetArchived(ctx context.Context, userID, jobID string, archived bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.archived[jobID] = archived
	return nil
}

func (f *fakeSource) DeleteConversation(ctx context.Context, userID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.deleted[jobID] = true
	return nil
}

func (f *fakeSource) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func summary(jobID string, at int64) Summary {
	s := Summary{
		JobID:       jobID,
		JobTitle:    "job " + jobID,
		JobStatus:   negotiation.JobInProgress,
		PosterID:    "poster",
		WorkerID:    "worker",
		IsPoster:    true,
		Counterpart: Counterpart{ID: "worker", Name: "Worker " + jobID},
	}
	if at > 0 {
		s.LastMessage = &LastMessage{ID: "m-" + jobID, Text: "hello", At: at, SenderID: "worker"}
	}
	return s
}

func newTestEngine(src Source) (*Engine, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts := DefaultOptions()
	opts.Clock = c.Now
	opts.PrefetchInterval = 0
	e := NewEngine("poster", src, opts)
	return e, c
}

func ids(list []Summary) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.JobID
	}
	return out
}

func equalIDs(t *testing.T, got []Summary, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("got %v, want %v", g, want)
	}
	for i := range g {
		if g[i] != want[i] {
			t.Fatalf("got %v, want %v", g, want)
		}
	}
}

func TestLoadSortsAndDebounces(t *testing.T) {
	src := newFakeSource(
		[]Summary{summary("a", 100), summary("b", 300), summary("c", 0)},
		[]Summary{summary("a", 500)},
	)
	e, c := newTestEngine(src)
	defer e.Close()

	ok, err := e.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "b", "a", "c")

	c.Advance(2 * time.Second)
	if ok, _ := e.Load(context.Background()); ok {
		t.Fatal("reload inside debounce window should be skipped")
	}
	if src.fetches() != 1 {
		t.Fatalf("fetches = %d, want 1", src.fetches())
	}

	c.Advance(4 * time.Second)
	if ok, err := e.Load(context.Background()); !ok || err != nil {
		t.Fatalf("reload after window: ok=%v err=%v", ok, err)
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "a")
}

func TestLoadFailureKeepsListAndAllowsRetry(t *testing.T) {
	src := newFakeSource([]Summary{summary("a", 100)}, nil, []Summary{summary("b", 200)})
	src.errs = []error{nil, errors.New("db down")}
	e, c := newTestEngine(src)
	defer e.Close()

	if _, err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Advance(6 * time.Second)
	if _, err := e.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !e.Retryable() {
		t.Fatal("engine should be retryable after a failed load")
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "a")

	// retry is not debounced
	if ok, err := e.Load(context.Background()); !ok || err != nil {
		t.Fatalf("retry: ok=%v err=%v", ok, err)
	}
	if e.Retryable() {
		t.Fatal("successful load should clear retryable")
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "b")
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	src := newFakeSource([]Summary{summary("old", 100)}, []Summary{summary("new", 200)})
	src.gate = make(chan struct{})
	e, _ := newTestEngine(src)
	defer e.Close()

	done := make(chan bool)
	go func() {
		ok, _ := e.Load(context.Background())
		done <- ok
	}()
	for src.fetches() == 0 {
		time.Sleep(time.Millisecond)
	}

	if ok, err := e.Load(context.Background()); !ok || err != nil {
		t.Fatalf("second load: ok=%v err=%v", ok, err)
	}
	close(src.gate)
	if <-done {
		t.Fatal("stale load should report false")
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "new")
}

func TestInsertMovesToFront(t *testing.T) {
	src := newFakeSource([]Summary{summary("a", 300), summary("b", 200), summary("c", 100)})
	e, _ := newTestEngine(src)
	defer e.Close()
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !e.ApplyEvent(MessageEvent{Type: EventInsert, MessageID: "m9", JobID: "c", SenderID: "worker", Text: "done", At: 400}) {
		t.Fatal("insert should apply")
	}
	got := e.View(Query{Tab: TabAll})
	equalIDs(t, got, "c", "a", "b")
	lm := got[0].LastMessage
	if lm.Text != "done" || lm.Read || lm.At != 400 {
		t.Fatalf("last message = %+v", lm)
	}

	if e.ApplyEvent(MessageEvent{Type: EventInsert, JobID: "zzz", At: 500}) {
		t.Fatal("events for unknown jobs must be ignored")
	}
	equalIDs(t, e.View(Query{Tab: TabAll}), "c", "a", "b")
}

func TestUpdateMatchesByTimestamp(t *testing.T) {
	src := newFakeSource([]Summary{summary("a", 300)})
	e, _ := newTestEngine(src)
	defer e.Close()
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if e.ApplyEvent(MessageEvent{Type: EventUpdate, JobID: "a", At: 299, Read: true}) {
		t.Fatal("update of an older message must not apply")
	}
	if got := e.View(Query{})[0].LastMessage; got.Read {
		t.Fatal("older update changed the cached message")
	}

	if !e.ApplyEvent(MessageEvent{Type: EventUpdate, JobID: "a", At: 300, Read: true}) {
		t.Fatal("matching update should apply")
	}
	if got := e.View(Query{})[0].LastMessage; !got.Read || got.Text != "hello" {
		t.Fatalf("last message = %+v", got)
	}

	e.ApplyEvent(MessageEvent{Type: EventUpdate, JobID: "a", At: 300, Deleted: true})
	if got := e.View(Query{})[0].LastMessage; !got.Deleted || got.Text != "" {
		t.Fatalf("deleted message = %+v", got)
	}
}

func TestOverlaysFollowServer(t *testing.T) {
	src := newFakeSource([]Summary{summary("a", 300), summary("b", 200)})
	e, _ := newTestEngine(src)
	defer e.Close()
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}

	src.setErr = errors.New("rpc failed")
	if err := e.Archive(ctx, "a"); err == nil {
		t.Fatal("expected archive error")
	}
	if st, _ := e.State("a"); st != StateActive {
		t.Fatalf("state after failed archive = %s", st)
	}
	if err := e.Delete(ctx, "b"); err == nil {
		t.Fatal("expected delete error")
	}
	if st, _ := e.State("b"); st != StateActive {
		t.Fatalf("state after failed delete = %s", st)
	}

	src.setErr = nil
	if err := e.Archive(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	equalIDs(t, e.View(Query{}), "b")
	equalIDs(t, e.View(Query{Archived: true}), "a")

	if err := e.Unarchive(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	equalIDs(t, e.View(Query{}), "a", "b")

	if err := e.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if st, _ := e.State("b"); st != StateDeleted {
		t.Fatalf("state = %s", st)
	}
	equalIDs(t, e.View(Query{}), "a")
	equalIDs(t, e.View(Query{Archived: true}))

	if err := e.Archive(ctx, "nope"); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("err = %v", err)
	}
}

func TestClosedJobsAutoArchive(t *testing.T) {
	done := summary("done", 300)
	done.JobStatus = negotiation.JobCompleted
	restored := summary("restored", 200)
	restored.JobStatus = negotiation.JobCancelled
	f := false
	restored.Archived = &f

	src := newFakeSource([]Summary{done, restored, summary("live", 100)})
	e, _ := newTestEngine(src)
	defer e.Close()
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}

	equalIDs(t, e.View(Query{}), "restored", "live")
	equalIDs(t, e.View(Query{Archived: true}), "done")

	if err := e.Unarchive(ctx, "done"); !errors.Is(err, ErrAutoArchived) {
		t.Fatalf("err = %v, want ErrAutoArchived", err)
	}
	if err := e.Unarchive(ctx, "live"); err != nil {
		t.Fatalf("unarchive of an active conversation: %v", err)
	}
	if _, ok := src.archived["live"]; ok {
		t.Fatal("no rpc expected for an active conversation")
	}
}

func TestOverlaySurvivesInFlightLoad(t *testing.T) {
	src := newFakeSource([]Summary{summary("a", 300)})
	e, c := newTestEngine(src)
	defer e.Close()
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}

	src.gate = make(chan struct{})
	src.gateAt = 1
	c.Advance(10 * time.Second)
	done := make(chan error)
	go func() {
		_, err := e.Load(ctx)
		done <- err
	}()
	for src.fetches() < 2 {
		time.Sleep(time.Millisecond)
	}
	if err := e.Archive(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	close(src.gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	// the in-flight list predates the archive
	if st, _ := e.State("a"); st != StateArchived {
		t.Fatalf("state = %s, want ARCHIVED", st)
	}

	// a load issued afterwards is authoritative; this fake never reports
	// the flag, so the conversation falls back to active
	c.Advance(10 * time.Second)
	if _, err := e.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if st, _ := e.State("a"); st != StateActive {
		t.Fatalf("state = %s, want server view after newer load", st)
	}
}

func TestLiveUnreadCounts(t *testing.T) {
	a := summary("a", 300)
	a.UnreadCount = 7
	src := newFakeSource([]Summary{a, summary("b", 200)})
	e, _ := newTestEngine(src)
	defer e.Close()
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := e.View(Query{})[0].UnreadCount; got != 7 {
		t.Fatalf("bulk count = %d, want 7", got)
	}

	e.SeedNotifications([]Notification{{ID: "n1", JobID: "b"}})
	got := e.View(Query{})
	if got[0].UnreadCount != 7 || got[1].UnreadCount != 0 {
		t.Fatalf("seeding replaced bulk counts: %d, %d", got[0].UnreadCount, got[1].UnreadCount)
	}

	e.ApplyNotification(Notification{ID: "n2", JobID: "a"})
	got = e.View(Query{})
	if got[0].UnreadCount != 1 || got[1].UnreadCount != 1 {
		t.Fatalf("live counts = %d, %d", got[0].UnreadCount, got[1].UnreadCount)
	}

	e.ApplyNotification(Notification{ID: "n1", JobID: "b", Read: true})
	got = e.View(Query{})
	if got[0].UnreadCount != 1 || got[1].UnreadCount != 0 {
		t.Fatalf("live counts = %d, %d", got[0].UnreadCount, got[1].UnreadCount)
	}
	if e.UnreadTotal() != 1 {
		t.Fatalf("total = %d", e.UnreadTotal())
	}
}

func TestPrefetchFirstEntriesInOrder(t *testing.T) {
	var list []Summary
	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		list = append(list, summary(id, int64(1000-i)))
	}
	src := newFakeSource(list)

	var mu sync.Mutex
	var warmed []string
	done := make(chan struct{})
	opts := DefaultOptions()
	opts.PrefetchInterval = time.Millisecond
	opts.Prefetcher = PrefetchFunc(func(ctx context.Context, jobID string) error {
		mu.Lock()
		defer mu.Unlock()
		warmed = append(warmed, jobID)
		if len(warmed) == 5 {
			close(done)
		}
		if jobID == "b" {
			return errors.New("ignored")
		}
		return nil
	})
	e := NewEngine("poster", src, opts)
	defer e.Close()
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("prefetch did not finish")
	}
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c", "d", "e"}
	if len(warmed) != len(want) {
		t.Fatalf("warmed %v, want %v", warmed, want)
	}
	for i := range want {
		if warmed[i] != want[i] {
			t.Fatalf("warmed %v, want %v", warmed, want)
		}
	}
}
