package services

import (
	"fmt"
	"math"
	"time"

	"github.com/tbourn/go-consent-bot/internal/channel"
)

// User-facing texts. The bot speaks Spanish only.
const (
	textWelcome = "Bienvenido a Alestur. Nos complace poder brindarte asistencia en todo lo que necesites. " +
		"Antes de continuar, te pedimos que leas nuestra Política de Tratamiento de Datos Personales. " +
		"Si estás de acuerdo con su contenido, selecciona *“Acepto”*; de lo contrario, selecciona *“No acepto”*"

	textAccepted        = "Perfecto ✅. Un asesor humano se comunicará contigo en breve."
	textRejected        = "Para continuar con la atención es necesario aceptar nuestra Política de Tratamiento de Datos Personales. Tu sesión será cerrada."
	textConsentReprompt = "Por favor responde *Acepto* o *No acepto* para continuar."

	textSurveyQuestion  = "¿Quedaste satisfecho con la atención recibida? (Responde *Sí* o *No*)"
	textSurveyDeclined  = "Gracias por tu tiempo 😊. Esperamos poder ayudarte en otra ocasión."
	textYesNoReprompt   = "Por favor responde *Sí* o *No* para continuar."
	textThanksSatisfied = "Gracias por calificar nuestro servicio 🙌. ¡Hasta pronto! 👋"
	textThanksUnhappy   = "Gracias por tu sinceridad. Trabajaremos para mejorar 💪. ¡Hasta pronto! 👋"

	textSurveyInvitation = "La conversación ha finalizado. ¿Deseas calificar tu experiencia con nosotros? Responde *Sí* o *No*."
	textTimeoutClose     = "Hemos cerrado esta conversación por inactividad. ¿Deseas calificar tu experiencia con nosotros? Responde *Sí* o *No*."

	// DefaultDocumentCaption is attached to every policy document.
	DefaultDocumentCaption = "Documento adjunto"
)

// Consent buttons. The ids are what the Cloud API echoes back in button_reply.id.
var consentOptions = []channel.Reply{
	{ID: "001", Title: "Acepto"},
	{ID: "002", Title: "No acepto"},
}

// warningText announces the forced close after grace, in whole minutes.
func warningText(grace time.Duration) string {
	minutes := max(1, int(math.Round(grace.Minutes())))
	return fmt.Sprintf("Hemos notado que llevas un tiempo sin responder. "+
		"Si no recibimos un mensaje en los próximos %d minutos, cerraremos la conversación automáticamente.", minutes)
}
