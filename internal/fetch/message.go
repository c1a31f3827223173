package fetch

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// ErrMissingHeader is returned when a required header is absent.
var ErrMissingHeader = errors.New("missing header")

// Detail is the parsed view of one message.
type Detail struct {
	ID      string `json:"mail_id"`
	Subject string `json:"mail_subject"`
	Body    string `json:"mail_body"`
	Date    string `json:"mail_date"`
}

// ParseMessage extracts subject, date and body from a full-format message.
// The Date header loses its "+hhmm" offset. HTML bodies are converted with
// conv when it is not nil.
func ParseMessage(msg *gmail.Message, conv htmlConverter) (*Detail, error) {
	if msg == nil || msg.Payload == nil {
		return nil, errors.New("message has no payload")
	}

	subject, ok := header(msg.Payload, "Subject")
	if !ok {
		return nil, fmt.Errorf("%w: Subject", ErrMissingHeader)
	}
	date, ok := header(msg.Payload, "Date")
	if !ok {
		return nil, fmt.Errorf("%w: Date", ErrMissingHeader)
	}

	d := &Detail{
		ID:      msg.Id,
		Subject: subject,
		Date:    strings.TrimSpace(strings.SplitN(date, "+", 2)[0]),
	}

	part := bodyPart(msg.Payload)
	if part == nil {
		return d, nil
	}

	raw, err := decodeBase64URL(part.Body.Data)
	if err != nil {
		return nil, fmt.Errorf("decodeBase64URL failed: %w", err)
	}
	d.Body = string(raw)

	if conv != nil && part.MimeType == "text/html" {
		if d.Body, err = conv.HTML2Text(raw); err != nil {
			return nil, fmt.Errorf("conv.HTML2Text failed: %w", err)
		}
	}

	return d, nil
}

func header(p *gmail.MessagePart, name string) (string, bool) {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}

	return "", false
}

// bodyPart picks parts[0], then parts[0].parts[0], then the payload itself.
func bodyPart(p *gmail.MessagePart) *gmail.MessagePart {
	if len(p.Parts) > 0 {
		first := p.Parts[0]
		if hasData(first) {
			return first
		}
		if len(first.Parts) > 0 && hasData(first.Parts[0]) {
			return first.Parts[0]
		}
	}
	if hasData(p) {
		return p
	}

	return nil
}

func hasData(p *gmail.MessagePart) bool {
	return p != nil && p.Body != nil && p.Body.Data != ""
}

func decodeBase64URL(data string) ([]byte, error) {
	data = strings.TrimRight(data, "=")
	if rem := len(data) % 4; rem != 0 {
		data += strings.Repeat("=", 4-rem)
	}

	return base64.URLEncoding.DecodeString(data)
}
