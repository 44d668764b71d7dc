package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/utils"
)

type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// clientFrame is what the browser sends over the inbox socket.
type clientFrame struct {
	Type  string      `json:"type"`
	JobID string      `json:"job_id,omitempty"`
	Query inbox.Query `json:"query"`
}

type inboxView struct {
	Conversations []inbox.Summary `json:"conversations"`
	Query         inbox.Query     `json:"query"`
	UnreadTotal   int             `json:"unread_total"`
	Retryable     bool            `json:"retryable"`
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowed),
	}
}

// originChecker admits clients without an Origin header, same-host pages and
// the listed origins. A "*" entry admits any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

const writeWait = 10 * time.Second

// session is one open inbox socket. Writes are serialized by mu.
type session struct {
	userID string
	conn   *websocket.Conn
	engine *inbox.Engine
	query  inbox.Query

	mu sync.Mutex
}

func (s *session) write(evt wsEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) pushView() error {
	return s.write(wsEvent{Type: "inbox", Data: inboxView{
		Conversations: s.engine.View(s.query),
		Query:         s.query,
		UnreadTotal:   s.engine.UnreadTotal(),
		Retryable:     s.engine.Retryable(),
	}})
}

func (s *session) pushError(msg string) error {
	return s.write(wsEvent{Type: "error", Data: echo.Map{"error": msg}})
}

// InboxWS streams the caller's inbox. The server pushes an "inbox" frame
// with the filtered view after every change and "job_detail" frames for
// conversations likely to be opened next.
func (h *Handlers) InboxWS(c echo.Context) error {
	userID, ok := utils.UserID(c)
	if !ok {
		return utils.Unauthorized(c)
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()

	s := &session{userID: userID, conn: ws, query: inbox.Query{Tab: inbox.TabAll}}
	opts := h.inbox
	opts.Prefetcher = inbox.PrefetchFunc(func(ctx context.Context, jobID string) error {
		job, err := h.jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		return s.write(wsEvent{Type: "job_detail", Data: marketplace.VisibleTo(job, userID)})
	})
	s.engine = inbox.NewEngine(userID, h.svc, opts)
	defer s.engine.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	if _, err := s.engine.Load(ctx); err != nil {
		slog.WarnContext(ctx, "inbox load failed", "user_id", userID, "error", err)
	}
	if h.feed != nil {
		ns, err := h.feed.UnreadNotifications(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "notification seed failed", "user_id", userID, "error", err)
		} else {
			s.engine.SeedNotifications(ns)
		}
	}
	if err := s.pushView(); err != nil {
		return nil
	}

	frames := make(chan clientFrame)
	go func() {
		defer close(frames)
		for {
			var f clientFrame
			if err := ws.ReadJSON(&f); err != nil {
				var syntax *json.SyntaxError
				if errors.As(err, &syntax) {
					continue
				}
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := h.handleFrame(ctx, s, f); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !h.applyEvent(ctx, s, ev) {
				continue
			}
			if err := s.pushView(); err != nil {
				return nil
			}
		}
	}
}

func (h *Handlers) applyEvent(ctx context.Context, s *session, ev Event) bool {
	switch {
	case ev.Message != nil:
		if s.engine.ApplyEvent(*ev.Message) {
			return true
		}
		// a first message in a conversation the list does not have yet
		if ev.Message.Type == inbox.EventInsert {
			loaded, err := s.engine.Load(ctx)
			if err != nil {
				slog.DebugContext(ctx, "inbox reload failed", "user_id", s.userID, "error", err)
			}
			return loaded
		}
	case ev.Notification != nil:
		return s.engine.ApplyNotification(*ev.Notification)
	}
	return false
}

// handleFrame returns an error only when the socket is unusable.
func (h *Handlers) handleFrame(ctx context.Context, s *session, f clientFrame) error {
	var err error
	switch f.Type {
	case "refresh":
		_, err = s.engine.Load(ctx)
	case "query":
		s.query = f.Query
	case "archive":
		err = s.engine.Archive(ctx, f.JobID)
	case "unarchive":
		err = s.engine.Unarchive(ctx, f.JobID)
	case "delete":
		err = s.engine.Delete(ctx, f.JobID)
	default:
		return s.pushError("unknown frame type")
	}
	if err != nil {
		slog.DebugContext(ctx, "inbox frame failed", "user_id", s.userID, "type", f.Type, "error", err)
		if werr := s.pushError(frameError(err)); werr != nil {
			return werr
		}
	}
	return s.pushView()
}

func frameError(err error) string {
	switch {
	case errors.Is(err, inbox.ErrAutoArchived):
		return "closed jobs stay archived"
	case errors.Is(err, inbox.ErrUnknownConversation):
		return "conversation not found"
	case errors.Is(err, ErrNotParticipant):
		return "you are not part of this conversation"
	}
	return "something went wrong, try again"
}
