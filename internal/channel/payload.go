// Package channel is the boundary between the conversation engine and the
// messaging provider. Outbound messages are modeled as Payload values that
// mirror the WhatsApp Cloud API JSON; a Sender delivers them. Inbound
// provider webhooks are normalized into Inbound events.
package channel

import (
	"net/url"
	"path"
	"strings"
)

// Payload kinds. They double as the message-log types.
const (
	KindText        = "text"
	KindInteractive = "interactive"
	KindDocument    = "document"
)

// Payload is one outbound message in WhatsApp Cloud API shape.
type Payload struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Document         *Document    `json:"document,omitempty"`
}

type Text struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type Interactive struct {
	Type   string          `json:"type"`
	Body   InteractiveBody `json:"body"`
	Action Action          `json:"action"`
}

type InteractiveBody struct {
	Text string `json:"text"`
}

type Action struct {
	Buttons []Button `json:"buttons"`
}

type Button struct {
	Type  string `json:"type"`
	Reply Reply  `json:"reply"`
}

// Reply is a quick-reply button. ID comes back in button_reply.id, Title in
// button_reply.title.
type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Document struct {
	Link     string `json:"link"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func base(to, kind string) Payload {
	return Payload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             kind,
	}
}

// TextMessage builds a plain text message.
func TextMessage(to, body string) Payload {
	p := base(to, KindText)
	p.Text = &Text{Body: body}
	return p
}

// ButtonMessage builds an interactive message with quick-reply buttons.
// The Cloud API accepts up to three.
func ButtonMessage(to, body string, options ...Reply) Payload {
	p := base(to, KindInteractive)
	buttons := make([]Button, 0, len(options))
	for _, o := range options {
		buttons = append(buttons, Button{Type: "reply", Reply: o})
	}
	p.Interactive = &Interactive{
		Type:   "button",
		Body:   InteractiveBody{Text: body},
		Action: Action{Buttons: buttons},
	}
	return p
}

// DocumentMessage builds a document-by-link message.
func DocumentMessage(to, link, caption string) Payload {
	p := base(to, KindDocument)
	p.Document = &Document{Link: link, Caption: caption, Filename: documentName(link)}
	return p
}

// Summary is the text stored in the message log for p.
func (p Payload) Summary() string {
	switch {
	case p.Text != nil:
		return p.Text.Body
	case p.Interactive != nil:
		return p.Interactive.Body.Text
	case p.Document != nil:
		return "Documento enviado: " + p.Document.Filename
	}
	return ""
}

// Options returns the button titles of an interactive payload.
func (p Payload) Options() []string {
	if p.Interactive == nil {
		return nil
	}
	out := make([]string, 0, len(p.Interactive.Action.Buttons))
	for _, b := range p.Interactive.Action.Buttons {
		out = append(out, b.Reply.Title)
	}
	return out
}

func documentName(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return link
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return strings.TrimSuffix(u.Host, "/")
	}
	return name
}
