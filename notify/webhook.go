package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable is returned while the delivery breaker is open.
	ErrUnavailable = errors.New("webhook unavailable: breaker open")
	// ErrQueueFull is returned by an async webhook that cannot keep up.
	ErrQueueFull = errors.New("webhook queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("webhook closed")
)

// WebhookOptions configures a Webhook.
type WebhookOptions struct {
	URL     string
	Timeout time.Duration // per request, 10s when zero

	// Async queues alerts and posts them from a background goroutine so
	// Notify never blocks on the network. QueueSize defaults to 64.
	Async     bool
	QueueSize int

	// breaker trips after MinRequests with FailureRatio failures and stays
	// open for OpenTimeout
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration

	Client *http.Client
}

// Payload is the JSON body posted for every alert.
type Payload struct {
	Channel string    `json:"channel"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type job struct {
	ctx context.Context
	p   Payload
}

// Webhook posts alerts as JSON behind a gobreaker circuit breaker.
type Webhook struct {
	opts   WebhookOptions
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger

	mu     sync.Mutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

var _ circuit.Notifier = (*Webhook)(nil)

// NewWebhook validates opts and starts the sender when Async is set.
func NewWebhook(opts WebhookOptions, log *zap.Logger) (*Webhook, error) {
	if opts.URL == "" {
		return nil, errors.New("webhook url is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FailureRatio <= 0 {
		opts.FailureRatio = 0.5
	}
	if opts.MinRequests == 0 {
		opts.MinRequests = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	w := &Webhook{
		opts:   opts,
		client: client,
		log:    log.Named("webhook"),
	}
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= opts.MinRequests && ratio >= opts.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.log.Warn("webhook breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	if opts.Async {
		size := opts.QueueSize
		if size <= 0 {
			size = 64
		}
		w.queue = make(chan job, size)
		w.wg.Add(1)
		go w.run()
	}
	return w, nil
}

// State reports the delivery breaker state.
func (w *Webhook) State() gobreaker.State {
	return w.cb.State()
}

// Notify posts the alert, or queues it when the webhook is async.
func (w *Webhook) Notify(ctx context.Context, channel, message string) error {
	p := Payload{Channel: channel, Message: message, Time: time.Now().UTC()}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.queue == nil {
		w.mu.Unlock()
		return w.send(ctx, p)
	}
	defer w.mu.Unlock()

	// the alert outlives the firing that raised it
	select {
	case w.queue <- job{ctx: context.WithoutCancel(ctx), p: p}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Webhook) run() {
	defer w.wg.Done()
	for j := range w.queue {
		if err := w.send(j.ctx, j.p); err != nil {
			w.log.Error("alert delivery failed",
				zap.String("channel", j.p.Channel),
				zap.Error(err))
		}
	}
}

func (w *Webhook) send(ctx context.Context, p Payload) error {
	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, w.post(ctx, p)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

func (w *Webhook) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tradeguard")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook status %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (w *Webhook) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.queue != nil {
		close(w.queue)
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.client.CloseIdleConnections()
	return nil
}
