package channel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Provider names, also used as the processed-event namespace.
const (
	ProviderCloud  = "cloud"
	ProviderTwilio = "twilio"
)

// Inbound is one user message normalized from a provider webhook. Text is
// empty for message types the bot does not understand (images, audio, ...).
type Inbound struct {
	Provider string
	EventID  string
	From     string
	Name     string
	Type     string
	Text     string
}

// Supported reports whether the message carried usable text.
func (in Inbound) Supported() bool { return in.From != "" && in.Text != "" }

type cloudWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string     `json:"field"`
			Value cloudValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []cloudMessage `json:"messages"`
}

type cloudMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *Reply `json:"button_reply,omitempty"`
		ListReply   *Reply `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
}

// ParseCloudWebhook extracts the user messages of a Cloud API webhook body.
// Status callbacks and other change fields produce no events.
func ParseCloudWebhook(body []byte) ([]Inbound, error) {
	var wh cloudWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	var out []Inbound
	for _, e := range wh.Entry {
		for _, ch := range e.Changes {
			names := map[string]string{}
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				out = append(out, Inbound{
					Provider: ProviderCloud,
					EventID:  m.ID,
					From:     strings.TrimSpace(m.From),
					Name:     names[m.From],
					Type:     m.Type,
					Text:     cloudText(m),
				})
			}
		}
	}
	return out, nil
}

func cloudText(m cloudMessage) string {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body
		}
	case "interactive":
		if m.Interactive == nil {
			return ""
		}
		if r := m.Interactive.ButtonReply; r != nil {
			return r.Title
		}
		if r := m.Interactive.ListReply; r != nil {
			return r.Title
		}
	case "button":
		if m.Button != nil {
			return m.Button.Text
		}
	}
	return ""
}

// ParseTwilioForm normalizes a Twilio WhatsApp webhook form. ok is false when
// the form has no sender.
func ParseTwilioForm(form url.Values) (in Inbound, ok bool) {
	from := NormalizeAddress(form.Get("From"))
	if from == "" {
		return Inbound{}, false
	}
	text := form.Get("ButtonText")
	typ := "button"
	if text == "" {
		text = form.Get("Body")
		typ = "text"
		if n := form.Get("NumMedia"); text == "" && n != "" && n != "0" {
			typ = "media"
		}
	}
	return Inbound{
		Provider: ProviderTwilio,
		EventID:  form.Get("MessageSid"),
		From:     from,
		Name:     form.Get("ProfileName"),
		Type:     typ,
		Text:     text,
	}, true
}

// NormalizeAddress strips Twilio's "whatsapp:" prefix and the leading '+'
// so both providers key users by the same digits.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "whatsapp:")
	return strings.TrimPrefix(addr, "+")
}
