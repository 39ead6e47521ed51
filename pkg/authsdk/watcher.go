package authsdk

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Watcher periodically checks the access token. When less than Threshold
// remains and a refresh token is available it renews proactively;
// otherwise an expired token is reported through the store's token-expired
// event.
type Watcher struct {
	Client    *Client
	Logger    *slog.Logger
	Interval  time.Duration
	Threshold time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher. Non-positive values default to a 30 second
// interval and a 60 second threshold.
func NewWatcher(c *Client, interval, threshold time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if threshold <= 0 {
		threshold = time.Minute
	}

	return &Watcher{
		Client:    c,
		Logger:    c.logger.With("component", "watcher"),
		Interval:  interval,
		Threshold: threshold,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the check loop in the background until Stop.
func (w *Watcher) Start() {
	go w.run()
	w.Logger.Debug("token watcher started", "interval", w.Interval, "threshold", w.Threshold)
}

// Stop ends the loop and waits for an in-progress check to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	w.Logger.Debug("token watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Check(context.Background())

	for {
		select {
		case <-ticker.C:
			w.Check(context.Background())
		case <-w.stopCh:
			return
		}
	}
}

// Check runs a single pass.
func (w *Watcher) Check(ctx context.Context) {
	store := w.Client.store

	token := store.AccessToken(ctx)
	if token == "" {
		return
	}

	remaining := time.Duration(store.RemainingSeconds(ctx)) * time.Second
	if remaining > w.Threshold {
		return
	}

	if store.RefreshToken(ctx) == "" {
		store.IsExpired(token)
		return
	}

	if err := w.Client.Refresh(ctx); err != nil {
		w.Logger.Warn("proactive renewal failed", "err", err)
	}
}
