package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// ErrNoEmail is returned by a Directory for users without an address.
var ErrNoEmail = errors.New("user has no email address")

// Directory resolves where to send a user's email.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// Processor handles queued email tasks.
type Processor struct {
	dir    Directory
	mailer Mailer
}

func NewProcessor(dir Directory, mailer Mailer) *Processor {
	return &Processor{dir: dir, mailer: mailer}
}

// Mux routes every email task type to the processor.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, t := range emailTasks {
		mux.HandleFunc(t, p.HandleEmail)
	}
	return mux
}

// NewServer builds the asynq server for the worker binary.
func NewServer(redisAddr string) *asynq.Server {
	return asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueEmails: 10,
			QueueAlerts: 5,
		},
	})
}

// NewClient builds the asynq client used to enqueue tasks.
func NewClient(redisAddr string) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
}

func (p *Processor) HandleEmail(ctx context.Context, t *asynq.Task) error {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	to, err := p.dir.Email(ctx, payload.UserID)
	if errors.Is(err, ErrNoEmail) {
		slog.InfoContext(ctx, "email skipped, no address", "task", t.Type(), "user_id", payload.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve email for %s: %w", payload.UserID, err)
	}
	if err := p.mailer.Send(ctx, to, payload.Envelope.Subject, payload.Envelope.Body); err != nil {
		slog.ErrorContext(ctx, "email send failed", "task", t.Type(), "user_id", payload.UserID, "error", err)
		return err
	}
	slog.InfoContext(ctx, "email_sent", "task", t.Type(), "user_id", payload.UserID, "job_id", payload.JobID)
	return nil
}
