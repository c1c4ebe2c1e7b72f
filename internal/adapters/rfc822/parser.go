package rfc822

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/utils"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultSnippetLength matches the excerpt length mail providers hand out
const DefaultSnippetLength = 200

// maxPartSize bounds how much of a single body part is read for the snippet
const maxPartSize = 64 << 10

func init() {
	message.CharsetReader = charsetReader
}

// charsetReader converts legacy charsets to UTF-8 for go-message
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if charset == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// Parser turns RFC 822 messages into RawMessages
type Parser struct {
	textProcessor *utils.TextProcessor
	snippetLength int
}

// NewParser creates a parser producing snippets of at most snippetLength runes
func NewParser(textProcessor *utils.TextProcessor, snippetLength int) *Parser {
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(nil)
	}
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	return &Parser{textProcessor: textProcessor, snippetLength: snippetLength}
}

// Parse reads one message. receivedAt is used for InternalDate when the
// message has no usable Date header; a zero receivedAt leaves it empty.
func (p *Parser) Parse(r io.Reader, id string, receivedAt time.Time) (*core.RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message %s: %w", id, err)
	}
	defer mr.Close()

	msg := &core.RawMessage{
		ID:      id,
		Headers: headersOf(mr.Header),
	}

	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		msg.InternalDate = strconv.FormatInt(date.UnixMilli(), 10)
	} else if !receivedAt.IsZero() {
		msg.InternalDate = strconv.FormatInt(receivedAt.UnixMilli(), 10)
	}

	text, err := p.bodyText(mr)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of message %s: %w", id, err)
	}
	msg.Snippet = p.textProcessor.Snippet(text, p.snippetLength)

	return msg, nil
}

// headersOf lists header fields with encoded words decoded
func headersOf(h mail.Header) []core.Header {
	var out []core.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out = append(out, core.Header{Name: canonicalName(fields.Key()), Value: value})
	}
	return out
}

// canonicalName gives the three headers the analyzer reads their usual spelling
func canonicalName(key string) string {
	switch strings.ToLower(key) {
	case "subject":
		return "Subject"
	case "from":
		return "From"
	case "date":
		return "Date"
	default:
		return key
	}
}

// bodyText returns the first text/plain part, else the first text/html part as text
func (p *Parser) bodyText(mr *mail.Reader) (string, error) {
	var htmlText string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", err
		}
		if part == nil {
			break
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		switch {
		case strings.HasPrefix(contentType, "text/plain") || contentType == "":
			data, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
			if err != nil {
				return "", err
			}
			return string(data), nil
		case strings.HasPrefix(contentType, "text/html") && htmlText == "":
			htmlText = htmlToText(io.LimitReader(part.Body, maxPartSize))
		}
	}
	return htmlText, nil
}

// htmlToText keeps the text nodes of an HTML document, skipping scripts and styles
func htmlToText(r io.Reader) string {
	var b strings.Builder
	z := html.NewTokenizer(r)
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style", "head", "title":
		return true
	}
	return false
}
