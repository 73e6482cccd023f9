package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier hands a notification to the analysis workflow without making the
// caller wait for it. Wait blocks until background deliveries have finished.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Wait()
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// AsyncNotifier delivers each notification in its own goroutine, detached
// from the request that triggered it. Outcomes are only logged.
type AsyncNotifier struct {
	sender  Sender
	timeout time.Duration
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func NewAsyncNotifier(sender Sender, timeout time.Duration, log zerolog.Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AsyncNotifier{sender: sender, timeout: timeout, log: log}
}

func (a *AsyncNotifier) Notify(ctx context.Context, n Notification) error {
	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		if err := a.sender.Send(ctx, n); err != nil {
			a.log.Warn().Err(err).Str("assessment_id", n.AssessmentID).Str("filename", n.Filename).Msg("webhook delivery failed")
			return
		}
		a.log.Info().Str("assessment_id", n.AssessmentID).Str("filename", n.Filename).Msg("webhook delivered")
	}()
	return nil
}

func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}

const PayloadField = "payload"

// StreamNotifier appends notifications to a Redis stream drained by the
// delivery worker.
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamNotifier(client *redis.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			PayloadField:    payload,
			"assessment_id": n.AssessmentID,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (s *StreamNotifier) Wait() {}

// Decode rebuilds a notification from stream entry values.
func Decode(values map[string]any) (Notification, error) {
	var raw []byte
	switch v := values[PayloadField].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Notification{}, errors.New("missing payload field")
	}

	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// DisabledNotifier stands in when no webhook URL is configured.
type DisabledNotifier struct {
	log zerolog.Logger
}

func NewDisabledNotifier(log zerolog.Logger) DisabledNotifier {
	return DisabledNotifier{log: log}
}

func (d DisabledNotifier) Notify(_ context.Context, n Notification) error {
	d.log.Debug().Str("assessment_id", n.AssessmentID).Str("filename", n.Filename).Msg("webhook disabled, notification dropped")
	return nil
}

func (DisabledNotifier) Wait() {}
