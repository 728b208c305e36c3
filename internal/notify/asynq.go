package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskTypePush is the asynq task type consumed by the push-delivery worker.
const TaskTypePush = "push:message"

const defaultPushRetries = 3

// AsynqDispatcher enqueues notifications as asynq tasks backed by Redis.
type AsynqDispatcher struct {
	client *asynq.Client
	queue  string
}

// NewAsynqDispatcher connects to the Redis instance at redisURL.
func NewAsynqDispatcher(redisURL, queue string) (*AsynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqDispatcher{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

// NewPushTask encodes n as a push task.
func NewPushTask(n Notification, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	opts := []asynq.Option{asynq.MaxRetry(defaultPushRetries)}
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	return asynq.NewTask(TaskTypePush, payload, opts...), nil
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, n Notification) error {
	task, err := NewPushTask(n, d.queue)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue push task: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// ParsePushTask decodes the notification carried by a push task.
func ParsePushTask(t *asynq.Task) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return Notification{}, fmt.Errorf("decode push task: %w", err)
	}
	return n, nil
}

// PushWorker consumes push tasks and forwards each notification to a
// delivery dispatcher.
type PushWorker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	deliver Dispatcher
	log     zerolog.Logger
}

// NewPushWorker creates a worker reading from queue on the Redis instance at
// redisURL.
func NewPushWorker(redisURL, queue string, concurrency int, deliver Dispatcher, log zerolog.Logger) (*PushWorker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	log = log.With().Str("component", "push-worker").Logger()

	w := &PushWorker{
		mux:     asynq.NewServeMux(),
		deliver: deliver,
		log:     log,
	}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Msg("push task failed")
		}),
	})
	w.mux.HandleFunc(TaskTypePush, w.handle)

	return w, nil
}

// ProcessTask implements asynq.Handler.
func (w *PushWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return w.mux.ProcessTask(ctx, t)
}

func (w *PushWorker) handle(ctx context.Context, t *asynq.Task) error {
	n, err := ParsePushTask(t)
	if err != nil {
		// A malformed payload never succeeds; skip retries.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return w.deliver.Dispatch(ctx, n)
}

// Run processes tasks until ctx is canceled, then shuts down gracefully.
func (w *PushWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start push worker: %w", err)
	}
	w.log.Info().Msg("push worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info().Msg("push worker stopped")
	return nil
}
