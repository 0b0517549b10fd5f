package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the subset of the Twilio REST API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender delivers payloads through Twilio's WhatsApp sender. Twilio
// has no free-form buttons outside approved templates, so interactive
// payloads degrade to the body followed by the option titles; documents go
// out as media URLs.
type TwilioSender struct {
	api  messageCreator
	from string
}

// NewTwilioSender builds a sender from account credentials. from is the
// WhatsApp-enabled number, with or without the "whatsapp:" prefix.
func NewTwilioSender(accountSID, authToken, from string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("twilio: account sid, auth token and from number are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: whatsappAddr(from)}, nil
}

// Send implements Sender.
func (s *TwilioSender) Send(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(whatsappAddr(p.To))

	switch {
	case p.Text != nil:
		params.SetBody(p.Text.Body)
	case p.Interactive != nil:
		params.SetBody(renderOptions(p.Interactive.Body.Text, p.Options()))
	case p.Document != nil:
		params.SetMediaUrl([]string{p.Document.Link})
		if p.Document.Caption != "" {
			params.SetBody(p.Document.Caption)
		}
	default:
		return fmt.Errorf("twilio: unsupported payload type %q", p.Type)
	}

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio: send: %w", err)
	}
	if resp != nil && resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}
	return nil
}

func renderOptions(body string, options []string) string {
	if len(options) == 0 {
		return body
	}
	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	for _, o := range options {
		b.WriteString("\n• ")
		b.WriteString(o)
	}
	return b.String()
}

// whatsappAddr turns a bare number into Twilio's "whatsapp:+<digits>" form.
func whatsappAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "whatsapp:") {
		return addr
	}
	if !strings.HasPrefix(addr, "+") {
		addr = "+" + addr
	}
	return "whatsapp:" + addr
}
