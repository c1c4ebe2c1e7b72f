package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/allowlist"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is used when subject rewriting is enabled without a prefix
const DefaultSubjectPrefix = "[**THREAT**] "

// deliverFunc hands an annotated message to the next hop
type deliverFunc func(sender string, recipients []string, data []byte) error

// PostfixFilter implements a Postfix content filter
type PostfixFilter struct {
	service   *core.TrustService
	parser    *rfc822.Parser
	allowlist *allowlist.Checker
	logger    *zap.Logger
	cfg       config.ServerConfig
	server    *smtp.Server
	deliver   deliverFunc
	timeout   time.Duration
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.TrustService,
	parser *rfc822.Parser,
	checker *allowlist.Checker,
	logger *zap.Logger,
	cfg config.ServerConfig,
) *PostfixFilter {
	// If subject prefix is not set but modify subject is enabled, use default prefix
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if parser == nil {
		parser = rfc822.NewParser(nil, 0)
	}
	if checker == nil {
		checker = allowlist.NewChecker(nil, logger)
	}

	f := &PostfixFilter{
		service:   service,
		parser:    parser,
		allowlist: checker,
		logger:    logger,
		cfg:       cfg,
		timeout:   10 * time.Second,
	}
	f.deliver = f.sendToPostfix
	return f
}

// Start starts the SMTP listener
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50

	f.logger.Info("Postfix filter starting", zap.String("address", f.cfg.ListenAddress))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the SMTP listener
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessMessage scores a message without going through SMTP
func (f *PostfixFilter) ProcessMessage(ctx context.Context, msg *core.RawMessage) (*core.Verdict, error) {
	verdict, err := f.service.AnalyzeMessage(ctx, *msg)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

// filterMessage analyzes one SMTP transaction and returns the message to forward.
// An *smtp.SMTPError is returned when the message must be rejected.
func (f *PostfixFilter) filterMessage(ctx context.Context, sender string, raw []byte) ([]byte, error) {
	msg, err := f.parser.Parse(bytes.NewReader(raw), "", time.Now())
	if err != nil {
		f.logger.Error("Failed to parse message, forwarding unmodified",
			zap.String("sender", sender), zap.Error(err))
		return annotateMessage(raw, []core.Header{{Name: AnalysisErrorHeader, Value: err.Error()}}, ""), nil
	}
	msg.ID = lookupHeader(msg, "Message-Id")

	verdict, err := f.ProcessMessage(ctx, msg)
	if err != nil {
		f.logger.Error("Failed to analyze message, forwarding unmodified",
			zap.String("sender", sender), zap.Error(err))
		return annotateMessage(raw, []core.Header{{Name: AnalysisErrorHeader, Value: err.Error()}}, ""), nil
	}

	if verdict.ThreatLevel == core.ThreatUltra && f.cfg.BlockThreats {
		if f.allowlist.IsAllowed(sender) {
			f.logger.Info("Not rejecting allowlisted sender",
				zap.String("sender", sender),
				zap.Int("trust_score", verdict.TrustScore))
		} else {
			f.logger.Info("Rejecting threat",
				zap.String("sender", sender),
				zap.String("from", verdict.Sender),
				zap.Int("trust_score", verdict.TrustScore),
				zap.Strings("flags", verdict.Flags))
			return nil, &smtp.SMTPError{
				Code:         550,
				EnhancedCode: smtp.EnhancedCode{5, 7, 1},
				Message:      fmt.Sprintf("Rejected as threat (trust score: %d)", verdict.TrustScore),
			}
		}
	}

	prefix := ""
	if f.cfg.ModifySubject && verdict.IsThreat() {
		prefix = f.cfg.SubjectPrefix
	}

	f.logger.Info("Processed message",
		zap.String("sender", sender),
		zap.String("message_id", msg.ID),
		zap.Int("trust_score", verdict.TrustScore),
		zap.String("category", string(verdict.Category)),
		zap.String("threat_level", string(verdict.ThreatLevel)))

	return annotateMessage(raw, verdictHeaders(f.cfg.Headers, verdict), prefix), nil
}

// sendToPostfix sends the processed message back to Postfix using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(f.cfg.Postfix.Address, strconv.Itoa(f.cfg.Postfix.Port))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	// Keep going when single recipients are refused
	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the envelope sender
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data filters the message and forwards it
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.filter.timeout)
	defer cancel()

	out, err := s.filter.filterMessage(ctx, s.sender, raw)
	if err != nil {
		return err
	}

	if !s.filter.cfg.Postfix.Enabled {
		s.filter.logger.Warn("Postfix forwarding disabled, message not reinjected",
			zap.String("sender", s.sender))
		return nil
	}

	if err := s.filter.deliver(s.sender, s.recipients, out); err != nil {
		s.filter.logger.Error("Failed to send message back to Postfix",
			zap.String("sender", s.sender), zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure forwarding message",
		}
	}
	return nil
}

// Logout ends the session
func (s *smtpSession) Logout() error {
	return nil
}
