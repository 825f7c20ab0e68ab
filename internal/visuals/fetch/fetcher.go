package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"storyreel/internal/visuals/ratelimit"
)

// Config controls retry pacing for image downloads.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	// Cooldown is slept after every attempt, whatever its outcome.
	Cooldown    time.Duration
	BackoffBase time.Duration
	MaxJitter   time.Duration
}

// DefaultConfig matches what the public image endpoint tolerates.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		AttemptTimeout: 90 * time.Second,
		Cooldown:       10 * time.Second,
		BackoffBase:    time.Second,
		MaxJitter:      time.Second,
	}
}

// Fetcher downloads generated images to disk, sharing one Gate and one
// Clock with every other job in the process.
type Fetcher struct {
	client *http.Client
	clock  *ratelimit.Clock
	gate   *ratelimit.Gate
	cfg    Config
	log    *logrus.Entry
	jitter func() float64
}

// New creates a Fetcher. A nil client means http.DefaultClient; per-attempt
// timeouts are applied through the request context.
func New(client *http.Client, clock *ratelimit.Clock, gate *ratelimit.Gate, cfg Config, log *logrus.Entry) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Fetcher{
		client: client,
		clock:  clock,
		gate:   gate,
		cfg:    cfg,
		log:    log.WithField("component", "fetcher"),
		jitter: rand.Float64,
	}
}

// Backoff returns the wait after a failed zero-based attempt:
// base * 2^(attempt+1) plus up to MaxJitter of random jitter.
func (f *Fetcher) Backoff(attempt int) time.Duration {
	wait := f.cfg.BackoffBase * time.Duration(int64(1)<<uint(attempt+1))
	return wait + time.Duration(f.jitter()*float64(f.cfg.MaxJitter))
}

// FetchAndSave downloads url into path. It returns path on success. Any
// error means nothing usable was written; errors.Is distinguishes
// ErrPermanent, ErrExhausted and context cancellation.
func (f *Fetcher) FetchAndSave(ctx context.Context, url, path, description string) (string, error) {
	return f.Run(ctx, NewJob(url, path, description, f.cfg.MaxAttempts))
}

// Run drives job to a terminal state. The gate permit is held for the whole
// retry sequence so a job never competes with itself.
func (f *Fetcher) Run(ctx context.Context, job *Job) (string, error) {
	if err := f.gate.Acquire(ctx); err != nil {
		return "", fmt.Errorf("waiting for download slot: %w", err)
	}
	defer f.gate.Release()

	log := f.log.WithField("image", job.Description)

	for job.Attempts < job.MaxAttempts {
		if err := f.clock.WaitIfPaused(ctx); err != nil {
			return "", err
		}

		path, done, err := f.try(ctx, job, log)

		// Spacing applies to every outcome, including success and permanent failure.
		cooldownErr := ratelimit.Sleep(ctx, f.cfg.Cooldown)
		if done {
			return path, err
		}
		if cooldownErr != nil {
			return "", cooldownErr
		}
	}

	job.State = StateFailedExhausted
	log.WithField("attempts", job.Attempts).Error("Failed to generate image after all attempts")
	return "", fmt.Errorf("%s: %w after %d attempts", job.Description, ErrExhausted, job.Attempts)
}

// try performs one attempt and, for retryable failures, its backoff sleep.
// done is true once the job reached a terminal state or ctx ended.
func (f *Fetcher) try(ctx context.Context, job *Job, log *logrus.Entry) (string, bool, error) {
	attempt := job.Attempts
	job.Attempts++
	job.State = StateAttempting
	log = log.WithField("attempt", job.Attempts)
	log.Info("Starting image generation")

	err := f.download(ctx, job)
	if err == nil {
		job.State = StateSucceeded
		log.WithField("path", job.Path).Info("Saved image")
		return job.Path, true, nil
	}
	if ctx.Err() != nil {
		return "", true, ctx.Err()
	}

	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.Throttled():
		wait := f.Backoff(attempt)
		log.WithField("wait_seconds", wait.Seconds()).Warn("Rate limited (429), triggering global backoff")
		f.clock.Extend(wait)
		return f.backoff(ctx, job, wait)

	case errors.As(err, &statusErr) && statusErr.Transient():
		wait := f.Backoff(attempt)
		log.WithError(err).WithField("wait_seconds", wait.Seconds()).Warn("Server error, retrying")
		return f.backoff(ctx, job, wait)

	case errors.As(err, &statusErr):
		job.State = StateFailedPermanent
		log.WithError(err).Error("Image request rejected, not retrying")
		return "", true, fmt.Errorf("%s: %w: %w", job.Description, ErrPermanent, err)

	case errors.Is(err, ErrPermanent):
		job.State = StateFailedPermanent
		log.WithError(err).Error("Image download failed, not retrying")
		return "", true, fmt.Errorf("%s: %w", job.Description, err)

	default:
		wait := f.Backoff(attempt)
		log.WithError(err).WithField("wait_seconds", wait.Seconds()).Warn("Network error, retrying")
		return f.backoff(ctx, job, wait)
	}
}

func (f *Fetcher) backoff(ctx context.Context, job *Job, wait time.Duration) (string, bool, error) {
	job.State = StateBackoff
	if err := ratelimit.Sleep(ctx, wait); err != nil {
		return "", true, err
	}
	return "", false, nil
}

// download issues one GET bounded by AttemptTimeout and writes a 200 body
// to job.Path, replacing any existing file.
func (f *Fetcher) download(ctx context.Context, job *Job) error {
	attemptCtx := ctx
	if f.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, job.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrPermanent, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if err := os.WriteFile(job.Path, body, 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	return nil
}
