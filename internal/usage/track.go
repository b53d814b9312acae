package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/nanaoosaki/health-companion/internal/llm"
)

// Recorder persists usage records. *Store implements it.
type Recorder interface {
	Add(ctx context.Context, rec Record) error
}

// Tracked is an llm.Client that records every Chat call under one role.
type Tracked struct {
	client   llm.Client
	recorder Recorder
	role     string
	logger   *slog.Logger
	now      func() time.Time
}

// Track wraps client so its calls are attributed to role.
func Track(client llm.Client, recorder Recorder, role string, logger *slog.Logger) *Tracked {
	return &Tracked{client: client, recorder: recorder, role: role, logger: logger, now: time.Now}
}

// Chat forwards to the wrapped client. A failure to record usage is
// logged and never fails the call.
func (t *Tracked) Chat(ctx context.Context, model string, messages []llm.Message, opts llm.CallOptions) (*llm.ChatResponse, error) {
	start := t.now()
	resp, err := t.client.Chat(ctx, model, messages, opts)

	rec := Record{
		Timestamp: start,
		Model:     model,
		Role:      t.role,
		LatencyMs: t.now().Sub(start).Milliseconds(),
		Failed:    err != nil,
	}
	if resp != nil {
		rec.InputTokens, rec.OutputTokens = resp.InputTokens, resp.OutputTokens
		if resp.Model != "" {
			rec.Model = resp.Model
		}
	}
	if rerr := t.recorder.Add(context.WithoutCancel(ctx), rec); rerr != nil {
		t.logger.Warn("usage record failed", "role", t.role, "error", rerr)
	}
	return resp, err
}

// Ping forwards to the wrapped client.
func (t *Tracked) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}
