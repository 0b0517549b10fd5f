// Provider webhook handlers.
//
//   - GET  /whatsapp   Cloud API subscription handshake
//   - POST /whatsapp   Cloud API message notifications
//   - POST /twilio     Twilio WhatsApp inbound messages
//
// Webhooks always acknowledge unless persisting an event failed. A 500 makes
// the provider redeliver, and redeliveries are dropped by provider message id,
// so answering 500 is safe. Malformed bodies are logged and acknowledged:
// retrying them cannot succeed. Messages without text (images, audio, ...)
// reach the engine, which records them as activity without replying.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-consent-bot/internal/channel"
	"github.com/tbourn/go-consent-bot/internal/http/middleware"
	"github.com/tbourn/go-consent-bot/internal/services"
)

const (
	ackText    = "EVENT_RECEIVED"
	emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// VerifyWhatsApp godoc
// @ID          verifyWhatsApp
// @Summary     Cloud API webhook verification
// @Description Echoes hub.challenge when hub.verify_token matches the configured token.
// @Tags        Webhooks
// @Produce     plain
//
// @Param       hub.mode          query  string  false "Subscription mode"  example(subscribe)
// @Param       hub.verify_token  query  string  true  "Verify token"
// @Param       hub.challenge     query  string  true  "Challenge to echo"
//
// @Success     200  {string}  string  "The challenge"
// @Failure     400  {object}  handlers.ErrorResponse  "Token mismatch or missing parameters"
// @Router      /whatsapp [get]
func (h *Handlers) VerifyWhatsApp(c *gin.Context) {
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")
	mode := c.Query("hub.mode")

	if h.verifyToken == "" || token != h.verifyToken || challenge == "" || (mode != "" && mode != "subscribe") {
		middleware.LoggerFrom(c).Warn().Str("mode", mode).Msg("webhook verification rejected")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "verification failed")
		return
	}
	c.String(http.StatusOK, challenge)
}

// WhatsAppWebhook godoc
// @ID          whatsAppWebhook
// @Summary     Cloud API message webhook
// @Description Feeds every user message of the notification to the conversation engine.
// @Tags        Webhooks
// @Accept      json
// @Produce     plain
//
// @Param       body  body  object  true  "Cloud API notification"
//
// @Success     200  {string}  string  "EVENT_RECEIVED"
// @Failure     500  {object}  handlers.ErrorResponse  "Event could not be persisted"
// @Router      /whatsapp [post]
func (h *Handlers) WhatsAppWebhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	body, err := c.GetRawData()
	if err != nil {
		lg.Warn().Err(err).Msg("read webhook body")
		c.String(http.StatusOK, ackText)
		return
	}
	events, err := channel.ParseCloudWebhook(body)
	if err != nil {
		lg.Warn().Err(err).Int("bytes", len(body)).Msg("malformed webhook dropped")
		c.String(http.StatusOK, ackText)
		return
	}

	failed := 0
	for _, in := range events {
		if !h.dispatch(c, lg, in) {
			failed++
		}
	}
	if failed > 0 {
		fail(c, http.StatusInternalServerError, ErrCodeEventFailed, "event processing failed")
		return
	}
	c.String(http.StatusOK, ackText)
}

// TwilioWebhook godoc
// @ID          twilioWebhook
// @Summary     Twilio WhatsApp webhook
// @Description Feeds one inbound Twilio message to the conversation engine. Replies go out through the REST API, so the TwiML answer is empty.
// @Tags        Webhooks
// @Accept      x-www-form-urlencoded
// @Produce     xml
//
// @Param       From        formData  string  true   "Sender, e.g. whatsapp:+573001112233"
// @Param       Body        formData  string  false  "Message text"
// @Param       ButtonText  formData  string  false  "Quick-reply button title"
// @Param       MessageSid  formData  string  false  "Provider message id"
//
// @Success     200  {string}  string  "Empty TwiML response"
// @Failure     500  {object}  handlers.ErrorResponse  "Event could not be persisted"
// @Router      /twilio [post]
func (h *Handlers) TwilioWebhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	if err := c.Request.ParseForm(); err != nil {
		lg.Warn().Err(err).Msg("malformed twilio form dropped")
		c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(emptyTwiML))
		return
	}
	in, found := channel.ParseTwilioForm(c.Request.PostForm)
	if found && !h.dispatch(c, lg, in) {
		fail(c, http.StatusInternalServerError, ErrCodeEventFailed, "event processing failed")
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(emptyTwiML))
}

// dispatch hands one inbound message to the engine. It reports false only
// when the provider should redeliver.
func (h *Handlers) dispatch(c *gin.Context, lg *zerolog.Logger, in channel.Inbound) bool {
	if !in.Supported() {
		// Still delivered: it counts as activity in an open session.
		lg.Debug().
			Str("provider", in.Provider).
			Str("type", in.Type).
			Str("event_id", in.EventID).
			Msg("message without text")
	}
	err := h.conv.HandleEvent(c.Request.Context(), services.InboundEvent{
		Provider: in.Provider,
		EventID:  in.EventID,
		From:     channel.NormalizeAddress(in.From),
		Name:     in.Name,
		Kind:     in.Type,
		Text:     in.Text,
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, services.ErrDuplicateEvent):
		lg.Debug().Str("event_id", in.EventID).Msg("duplicate delivery ignored")
		return true
	case errors.Is(err, services.ErrEmptyAddress):
		lg.Warn().Str("event_id", in.EventID).Msg("message without sender ignored")
		return true
	default:
		lg.Error().Ctx(c.Request.Context()).Err(err).
			Str("provider", in.Provider).
			Str("event_id", in.EventID).
			Msg("handle inbound message")
		return false
	}
}
