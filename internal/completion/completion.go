package completion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recordsql/recordsql/internal/observability"
)

var ErrNoBlock = errors.New("completion block not found")

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Response struct {
	Text string
	Err  error
}

type Options struct {
	Stage        string
	BatchSize    int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if strings.TrimSpace(o.Stage) == "" {
		o.Stage = "unknown"
	}
	return o
}

// Batch dispatches prompts in chunks of BatchSize. Prompts within a chunk run
// concurrently and the chunk is awaited as a unit. Responses keep input order.
// Per-prompt failures are reported in Response.Err and never abort the batch.
func Batch(ctx context.Context, completer Completer, prompts []string, opts Options) []Response {
	opts = opts.withDefaults()
	out := make([]Response, len(prompts))
	if len(prompts) == 0 {
		return out
	}
	if completer == nil {
		for i := range out {
			out[i].Err = fmt.Errorf("completion service is not configured")
		}
		return out
	}

	for start := 0; start < len(prompts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(prompts) {
			end = len(prompts)
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				text, err := completeWithRetry(ctx, completer, prompts[i], opts)
				out[i] = Response{Text: text, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func completeWithRetry(ctx context.Context, completer Completer, prompt string, opts Options) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 && opts.RetryBackoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * opts.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := completeOnce(ctx, completer, prompt, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func completeOnce(ctx context.Context, completer Completer, prompt string, opts Options) (string, error) {
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	started := time.Now()
	text, err := completer.Complete(callCtx, prompt)
	observability.ObserveCompletion(opts.Stage, err, time.Since(started))
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", opts.Stage, err)
	}
	return text, nil
}

func blockPattern(tag string) (*regexp.Regexp, *regexp.Regexp) {
	quoted := regexp.QuoteMeta(tag)
	full := regexp.MustCompile(`(?is)<` + quoted + `>(.*?)</` + quoted + `>`)
	closing := regexp.MustCompile(`(?is)^(.*?)</` + quoted + `>`)
	return full, closing
}

// ExtractBlock returns the trimmed text between <tag> and </tag>. Output that
// starts directly with the body and only carries the closing marker is
// accepted too, since prompts end with the opening marker.
func ExtractBlock(text, tag string) (string, error) {
	full, closing := blockPattern(tag)
	if match := full.FindStringSubmatch(text); len(match) == 2 {
		return StripMarkdownFence(match[1]), nil
	}
	if match := closing.FindStringSubmatch(text); len(match) == 2 {
		body := match[1]
		if idx := strings.LastIndex(strings.ToLower(body), "<"+strings.ToLower(tag)+">"); idx >= 0 {
			body = body[idx+len(tag)+2:]
		}
		return StripMarkdownFence(body), nil
	}
	return "", fmt.Errorf("%w: <%s>", ErrNoBlock, tag)
}

func StripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " {[(") {
			trimmed = trimmed[newline+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
