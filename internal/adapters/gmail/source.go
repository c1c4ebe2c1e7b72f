package gmail

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

// Options tunes how the source talks to the Gmail API
type Options struct {
	User          string
	Query         string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Source is a MessageSource backed by the Gmail API
type Source struct {
	svc    *gmailv1.Service
	opts   Options
	logger *zap.Logger
}

// NewSource creates a Gmail message source
func NewSource(svc *gmailv1.Service, opts Options, logger *zap.Logger) *Source {
	if opts.User == "" {
		opts.User = "me"
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	return &Source{svc: svc, opts: opts, logger: logger}
}

// ListMessageIDs returns up to max message IDs matching the configured query
func (s *Source) ListMessageIDs(ctx context.Context, max int) ([]string, error) {
	var resp *gmailv1.ListMessagesResponse
	err := s.withRetry(ctx, "list messages", func() error {
		call := s.svc.Users.Messages.List(s.opts.User).MaxResults(int64(max)).Context(ctx)
		if s.opts.Query != "" {
			call = call.Q(s.opts.Query)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// GetMessage fetches one message with its headers and snippet
func (s *Source) GetMessage(ctx context.Context, id string) (*core.RawMessage, error) {
	var msg *gmailv1.Message
	err := s.withRetry(ctx, "get message "+id, func() error {
		var err error
		msg, err = s.svc.Users.Messages.Get(s.opts.User, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return toRawMessage(msg), nil
}

func toRawMessage(msg *gmailv1.Message) *core.RawMessage {
	raw := &core.RawMessage{
		ID:           msg.Id,
		Snippet:      msg.Snippet,
		InternalDate: strconv.FormatInt(msg.InternalDate, 10),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			raw.Headers = append(raw.Headers, core.Header{Name: h.Name, Value: h.Value})
		}
	}
	return raw
}

// withRetry runs fn, retrying retryable provider errors with doubling backoff
func (s *Source) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.opts.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		classified := classify(op, err)
		if !core.IsRetryable(classified) || attempt >= s.opts.RetryAttempts {
			return classified
		}

		s.logger.Warn("Retrying Gmail request",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// classify maps a Gmail client error onto the provider error kinds
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return core.ClassifyStatus(op, apiErr.Code, err)
	}
	return core.ClassifyStatus(op, 0, err)
}
