package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// Client is the subset of the IMAP client used by the source
type Client interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
}

// Connector opens an authenticated IMAP session
type Connector func(cfg config.IMAPConfig) (Client, error)

// Connect dials the configured server and logs in
func Connect(cfg config.IMAPConfig) (Client, error) {
	var c *imapclient.Client
	var err error

	if cfg.TLS {
		c, err = imapclient.DialTLS(cfg.Address(), &tls.Config{ServerName: cfg.Host})
	} else {
		c, err = imapclient.Dial(cfg.Address())
	}
	if err != nil {
		return nil, core.ClassifyStatus("imap dial", 0, err)
	}

	if err := authenticate(c, cfg); err != nil {
		_ = c.Logout()
		return nil, err
	}

	return c, nil
}

// authenticate logs in. Only a NO reply or disabled LOGIN counts as an
// authentication failure; transport errors stay retryable.
func authenticate(c Client, cfg config.IMAPConfig) error {
	err := c.Login(cfg.Username, cfg.Password)
	if err == nil {
		return nil
	}

	var status *imap.ErrStatusResp
	if (errors.As(err, &status) && status.Resp != nil && status.Resp.Type == imap.StatusRespNo) ||
		errors.Is(err, imapclient.ErrLoginDisabled) {
		return &core.ProviderError{Op: "imap login", Kind: core.ErrAuthExpired, Err: err}
	}
	return core.ClassifyStatus("imap login", 0, err)
}

// Source is a MessageSource reading one IMAP mailbox over a shared session
type Source struct {
	cfg       config.IMAPConfig
	connector Connector
	parser    *rfc822.Parser
	logger    *zap.Logger

	mu     sync.Mutex
	client Client
}

// NewSource creates an IMAP message source; a nil connector uses Connect
func NewSource(cfg config.IMAPConfig, connector Connector, parser *rfc822.Parser, logger *zap.Logger) *Source {
	if connector == nil {
		connector = Connect
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Source{cfg: cfg, connector: connector, parser: parser, logger: logger}
}

// withSession runs fn on the shared session, reconnecting after a failure
func (s *Source) withSession(ctx context.Context, fn func(Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		c, err := s.connector(s.cfg)
		if err != nil {
			return err
		}
		if _, err := c.Select(s.cfg.Mailbox, true); err != nil {
			_ = c.Logout()
			return fmt.Errorf("select mailbox %s: %w", s.cfg.Mailbox, err)
		}
		s.client = c
	}

	if err := fn(s.client); err != nil {
		s.logger.Debug("Dropping IMAP session after error", zap.Error(err))
		_ = s.client.Logout()
		s.client = nil
		return err
	}
	return nil
}

// ListMessageIDs returns up to max UIDs, highest first
func (s *Source) ListMessageIDs(ctx context.Context, max int) ([]string, error) {
	var ids []string
	err := s.withSession(ctx, func(c Client) error {
		uids, err := c.UidSearch(imap.NewSearchCriteria())
		if err != nil {
			return core.ClassifyStatus("imap search", 0, err)
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		if max > 0 && len(uids) > max {
			uids = uids[:max]
		}
		ids = make([]string, 0, len(uids))
		for _, uid := range uids {
			ids = append(ids, strconv.FormatUint(uint64(uid), 10))
		}
		return nil
	})
	return ids, err
}

// GetMessage fetches and parses one message without marking it seen
func (s *Source) GetMessage(ctx context.Context, id string) (*core.RawMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, &core.ProviderError{Op: "imap fetch " + id, Kind: core.ErrMessageNotFound, Err: err}
	}

	var fetched *imap.Message
	section := &imap.BodySectionName{Peek: true}
	err = s.withSession(ctx, func(c Client) error {
		seqset := new(imap.SeqSet)
		seqset.AddNum(uint32(uid))
		items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

		ch := make(chan *imap.Message, 1)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, items, ch)
		}()
		for msg := range ch {
			if fetched == nil {
				fetched = msg
			}
		}
		if err := <-done; err != nil {
			return core.ClassifyStatus("imap fetch "+id, 0, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if fetched == nil {
		return nil, &core.ProviderError{Op: "imap fetch " + id, Kind: core.ErrMessageNotFound}
	}
	body := fetched.GetBody(section)
	if body == nil {
		return nil, &core.ProviderError{Op: "imap fetch " + id, Kind: core.ErrMessageNotFound,
			Err: fmt.Errorf("message body not available")}
	}

	msg, err := s.parser.Parse(body, id, fetched.InternalDate)
	if err != nil {
		return nil, err
	}
	if !fetched.InternalDate.IsZero() {
		msg.InternalDate = strconv.FormatInt(fetched.InternalDate.UnixMilli(), 10)
	}
	return msg, nil
}

// Close logs out of the shared session
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Logout()
	s.client = nil
	return err
}
