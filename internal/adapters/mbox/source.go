package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// Source is a MessageSource reading a local mbox file.
// Message IDs are 1-based positions in the file.
type Source struct {
	path   string
	parser *rfc822.Parser
	logger *zap.Logger
}

// NewSource creates an mbox message source
func NewSource(path string, parser *rfc822.Parser, logger *zap.Logger) *Source {
	return &Source{path: path, parser: parser, logger: logger}
}

// ListMessageIDs returns up to max positions, last message first
func (s *Source) ListMessageIDs(ctx context.Context, max int) ([]string, error) {
	count := 0
	err := s.scan(ctx, func(int, io.Reader) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, count)
	for n := count; n >= 1; n-- {
		if max > 0 && len(ids) >= max {
			break
		}
		ids = append(ids, strconv.Itoa(n))
	}
	return ids, nil
}

// GetMessage parses the message at the given position
func (s *Source) GetMessage(ctx context.Context, id string) (*core.RawMessage, error) {
	want, err := strconv.Atoi(id)
	if err != nil || want < 1 {
		return nil, &core.ProviderError{Op: "mbox read " + id, Kind: core.ErrMessageNotFound, Err: err}
	}

	var msg *core.RawMessage
	err = s.scan(ctx, func(n int, r io.Reader) (bool, error) {
		if n != want {
			return true, nil
		}
		parsed, err := s.parser.Parse(r, id, time.Time{})
		if err != nil {
			return false, err
		}
		msg = parsed
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, &core.ProviderError{Op: "mbox read " + id, Kind: core.ErrMessageNotFound}
	}
	return msg, nil
}

// scan calls fn for every message until fn returns false
func (s *Source) scan(ctx context.Context, fn func(n int, r io.Reader) (bool, error)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open mbox %s: %w", s.path, err)
	}
	defer f.Close()

	reader := mbox.NewReader(f)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read mbox %s: %w", s.path, err)
		}
		more, err := fn(n, r)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}
