package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrUnknownConversation = errors.New("conversation not in inbox")
	// ErrAutoArchived is returned when unarchiving a conversation that is
	// archived only because its job closed.
	ErrAutoArchived = errors.New("conversation is archived because the job closed")
)

// Source is the server side of the inbox: one bulk query plus the
// per-user overlay RPCs.
type Source interface {
	FetchInbox(ctx context.Context, userID string) ([]Summary, error)
	SetArchived(ctx context.Context, userID, jobID string, archived bool) error
	DeleteConversation(ctx context.Context, userID, jobID string) error
}

// Prefetcher warms job details for conversations likely to be opened.
type Prefetcher interface {
	Prefetch(ctx context.Context, jobID string) error
}

type PrefetchFunc func(ctx context.Context, jobID string) error

func (f PrefetchFunc) Prefetch(ctx context.Context, jobID string) error { return f(ctx, jobID) }

type Options struct {
	// Debounce skips a reload when the previous one completed this recently.
	Debounce         time.Duration
	PrefetchCount    int
	PrefetchInterval time.Duration
	Prefetcher       Prefetcher
	Clock            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Debounce:         5 * time.Second,
		PrefetchCount:    5,
		PrefetchInterval: 200 * time.Millisecond,
	}
}

type archiveMark struct {
	archived bool
	seq      uint64
}

// Engine holds one user's inbox for the lifetime of a session and merges
// bulk loads, live message events, notifications and local overlays.
type Engine struct {
	userID string
	src    Source
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	summaries []Summary
	loaded    bool
	seq       uint64
	lastLoad  time.Time
	retryable bool

	archive map[string]archiveMark
	deleted map[string]uint64

	notifs       map[string]Notification
	liveObserved bool
}

func NewEngine(userID string, src Source, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		userID:  userID,
		src:     src,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		archive: make(map[string]archiveMark),
		deleted: make(map[string]uint64),
		notifs:  make(map[string]Notification),
	}
}

// Close stops pending prefetches.
func (e *Engine) Close() {
	e.cancel()
}

// Load replaces the list with a fresh bulk fetch. It reports false without
// fetching when the last load completed within the debounce window, and
// false when a newer load was issued while this one was in flight. On
// failure the previous list is kept and the engine is marked retryable.
func (e *Engine) Load(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.loaded && !e.retryable && e.opts.Debounce > 0 && e.opts.Clock().Sub(e.lastLoad) < e.opts.Debounce {
		e.mu.Unlock()
		return false, nil
	}
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	list, err := e.src.FetchInbox(ctx, e.userID)

	e.mu.Lock()
	if seq != e.seq {
		e.mu.Unlock()
		slog.DebugContext(ctx, "inbox load discarded", "user_id", e.userID, "seq", seq)
		return false, nil
	}
	if err != nil {
		e.retryable = true
		e.mu.Unlock()
		return false, fmt.Errorf("fetch inbox: %w", err)
	}

	next := make([]Summary, len(list))
	for i, s := range list {
		next[i] = s.clone()
	}
	sortByRecency(next)
	e.summaries = next
	e.loaded = true
	e.retryable = false
	e.lastLoad = e.opts.Clock()
	// the fresh list carries server flags for every overlay set before
	// this load was issued
	for id, m := range e.archive {
		if m.seq < seq {
			delete(e.archive, id)
		}
	}
	for id, s := range e.deleted {
		if s < seq {
			delete(e.deleted, id)
		}
	}
	warm := e.prefetchTargets()
	e.mu.Unlock()

	e.prefetch(warm)
	return true, nil
}

// Retryable reports whether the last load failed.
func (e *Engine) Retryable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retryable
}

func (e *Engine) prefetchTargets() []string {
	n := e.opts.PrefetchCount
	if n > len(e.summaries) {
		n = len(e.summaries)
	}
	ids := make([]string, 0, n)
	for _, s := range e.summaries[:n] {
		ids = append(ids, s.JobID)
	}
	return ids
}

// prefetch warms the given jobs one at a time, spaced by PrefetchInterval.
// Failures are logged and dropped.
func (e *Engine) prefetch(ids []string) {
	p := e.opts.Prefetcher
	if p == nil || len(ids) == 0 {
		return
	}
	go func() {
		for i, id := range ids {
			if i > 0 && e.opts.PrefetchInterval > 0 {
				t := time.NewTimer(e.opts.PrefetchInterval)
				select {
				case <-e.ctx.Done():
					t.Stop()
					return
				case <-t.C:
				}
			}
			if e.ctx.Err() != nil {
				return
			}
			if err := p.Prefetch(e.ctx, id); err != nil {
				slog.Debug("inbox prefetch failed", "job_id", id, "error", err)
			}
		}
	}()
}

// ApplyEvent merges a live message change. Events for conversations not
// in the list are ignored. An INSERT becomes the last message and moves its
// conversation to the front. An UPDATE applies only when it targets the
// cached last message, matched by timestamp.
func (e *Engine) ApplyEvent(ev MessageEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(ev.JobID)
	if i < 0 {
		return false
	}
	s := e.summaries[i]

	switch ev.Type {
	case EventInsert:
		s.LastMessage = &LastMessage{
			ID:       ev.MessageID,
			Text:     ev.Text,
			At:       ev.At,
			SenderID: ev.SenderID,
			Read:     false,
			Deleted:  ev.Deleted,
		}
		copy(e.summaries[1:i+1], e.summaries[:i])
		e.summaries[0] = s
		return true
	case EventUpdate:
		if s.LastMessage == nil || s.LastMessage.At != ev.At {
			return false
		}
		lm := *s.LastMessage
		lm.Read = ev.Read
		lm.Deleted = ev.Deleted
		if ev.Deleted {
			lm.Text = ""
		} else if ev.Text != "" {
			lm.Text = ev.Text
		}
		s.LastMessage = &lm
		e.summaries[i] = s
		return true
	}
	return false
}

// SeedNotifications installs the unread notifications known at session
// start. Bulk counts stay in effect until the first live event arrives.
func (e *Engine) SeedNotifications(ns []Notification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range ns {
		e.notifs[n.ID] = n
	}
}

// ApplyNotification records a created or updated notification.
func (e *Engine) ApplyNotification(n Notification) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.liveObserved = true
	prev, ok := e.notifs[n.ID]
	e.notifs[n.ID] = n
	return !ok || prev != n
}

// Archive hides a conversation from the active view. The overlay changes
// only after the server accepted the change.
func (e *Engine) Archive(ctx context.Context, jobID string) error {
	if !e.known(jobID) {
		return ErrUnknownConversation
	}
	if err := e.src.SetArchived(ctx, e.userID, jobID, true); err != nil {
		return fmt.Errorf("archive %s: %w", jobID, err)
	}
	e.mu.Lock()
	e.archive[jobID] = archiveMark{archived: true, seq: e.seq}
	e.mu.Unlock()
	return nil
}

// Unarchive restores a manually archived conversation. Conversations
// archived only because the job closed cannot be restored this way.
func (e *Engine) Unarchive(ctx context.Context, jobID string) error {
	e.mu.Lock()
	i := e.indexOf(jobID)
	if i < 0 {
		e.mu.Unlock()
		return ErrUnknownConversation
	}
	s := e.summaries[i]
	manual, archived := e.manualArchive(s), e.isArchived(s)
	e.mu.Unlock()

	if !archived {
		return nil
	}
	if !manual {
		return ErrAutoArchived
	}
	if err := e.src.SetArchived(ctx, e.userID, jobID, false); err != nil {
		return fmt.Errorf("unarchive %s: %w", jobID, err)
	}
	e.mu.Lock()
	e.archive[jobID] = archiveMark{archived: false, seq: e.seq}
	e.mu.Unlock()
	return nil
}

// Delete hides a conversation for this user for good.
func (e *Engine) Delete(ctx context.Context, jobID string) error {
	if !e.known(jobID) {
		return ErrUnknownConversation
	}
	if err := e.src.DeleteConversation(ctx, e.userID, jobID); err != nil {
		return fmt.Errorf("delete %s: %w", jobID, err)
	}
	e.mu.Lock()
	e.deleted[jobID] = e.seq
	e.mu.Unlock()
	return nil
}

// State reports where a conversation currently sits.
func (e *Engine) State(jobID string) (EntryState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(jobID)
	if i < 0 {
		return "", false
	}
	s := e.summaries[i]
	switch {
	case e.isDeleted(s):
		return StateDeleted, true
	case e.isArchived(s):
		return StateArchived, true
	}
	return StateActive, true
}

func (e *Engine) known(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(jobID) >= 0
}

func (e *Engine) indexOf(jobID string) int {
	for i := range e.summaries {
		if e.summaries[i].JobID == jobID {
			return i
		}
	}
	return -1
}

func (e *Engine) isDeleted(s Summary) bool {
	_, ok := e.deleted[s.JobID]
	return ok || s.Deleted
}

// manualArchive reports an archive the user asked for, locally or on the server.
func (e *Engine) manualArchive(s Summary) bool {
	if m, ok := e.archive[s.JobID]; ok {
		return m.archived
	}
	return s.Archived != nil && *s.Archived
}

// isArchived applies the local overlay first, then the server flag when
// present, then the closed-job default.
func (e *Engine) isArchived(s Summary) bool {
	if m, ok := e.archive[s.JobID]; ok {
		return m.archived
	}
	if s.Archived != nil {
		return *s.Archived
	}
	return s.JobStatus.Closed()
}

func (e *Engine) unreadCounts() map[string]int {
	if !e.liveObserved {
		return nil
	}
	counts := make(map[string]int)
	for _, n := range e.notifs {
		if n.JobID != "" && !n.Read {
			counts[n.JobID]++
		}
	}
	return counts
}
