// Package llm talks to generative text providers. Callers see a total
// interface: Oracle.Complete never returns an error, it returns a Completion
// that is either text or the failure sentinel.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"querygenie/internal/metrics"
)

// ErrEmptyResponse is recorded when a provider answers with blank text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Provider is a raw completion backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Completion is the outcome of one oracle call. When Err is set, Text is
// empty and the completion is the failure sentinel.
type Completion struct {
	Text string
	Err  error
}

// Failed reports whether the completion is the failure sentinel.
func (c Completion) Failed() bool {
	return c.Err != nil
}

// Oracle wraps a Provider, absorbing every provider failure.
type Oracle struct {
	provider Provider
	timeout  time.Duration
	log      *zap.Logger
}

func NewOracle(provider Provider, timeout time.Duration, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		provider: provider,
		timeout:  timeout,
		log:      logger.With(zap.String("provider", provider.Name())),
	}
}

// Complete sends prompt to the provider once. No retries.
func (o *Oracle) Complete(ctx context.Context, prompt string) Completion {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	name := o.provider.Name()
	start := time.Now()
	text, err := o.generate(ctx, prompt)
	duration := time.Since(start)
	metrics.OracleRequestDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		metrics.OracleRequestsTotal.WithLabelValues(name, "failure").Inc()
		o.log.Error("oracle call failed",
			zap.Duration("duration", duration),
			zap.Int("prompt_len", len(prompt)),
			zap.Error(err))
		return Completion{Err: err}
	}

	metrics.OracleRequestsTotal.WithLabelValues(name, "success").Inc()
	o.log.Debug("oracle call completed",
		zap.Duration("duration", duration),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("response_len", len(text)))
	return Completion{Text: text}
}

// generate shields the caller from provider panics as well as errors.
func (o *Oracle) generate(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errors.New("provider panicked")
			o.log.Error("provider panic", zap.Any("panic", r))
		}
	}()
	return o.provider.Generate(ctx, prompt)
}
