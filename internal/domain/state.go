package domain

import "strings"

// State is one named stage of a conversation. The set is closed: only the
// constants below are produced by the engine.
type State string

const (
	StateStart           State = "inicio"
	StateAwaitingConsent State = "esperando_aceptacion"
	StateAccepted        State = "aceptado"
	StateRejected        State = "rechazado"
	StateAwaitingRating  State = "esperando_calificacion"
	StateSurvey          State = "encuesta_satisfaccion"
	StateClosed          State = "finalizado"
)

var stateDescriptions = map[State]string{
	StateStart:           "Sesión recién iniciada",
	StateAwaitingConsent: "Esperando aceptación de política de datos",
	StateAccepted:        "Términos aceptados, pasa a asesor humano",
	StateRejected:        "Usuario no aceptó los términos",
	StateAwaitingRating:  "Esperando que el usuario decida si quiere calificar",
	StateSurvey:          "Usuario aceptó calificar",
	StateClosed:          "Sesión finalizada",
}

// States returns every known state in flow order.
func States() []State {
	return []State{
		StateStart,
		StateAwaitingConsent,
		StateAccepted,
		StateRejected,
		StateAwaitingRating,
		StateSurvey,
		StateClosed,
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	_, ok := stateDescriptions[s]
	return ok
}

// Description returns the human-readable description of s, or the raw name
// for unknown values.
func (s State) Description() string {
	if d, ok := stateDescriptions[s]; ok {
		return d
	}
	return string(s)
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool { return s == StateClosed }

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

// ParseState normalizes a stored state name (trim + lowercase) and reports
// whether it is a known state.
func ParseState(name string) (State, bool) {
	st := State(strings.ToLower(strings.TrimSpace(name)))
	return st, st.Valid()
}

// CloseReason records why a session was closed.
type CloseReason string

const (
	CloseRejectedPolicy    CloseReason = "no_acepta_politica"
	CloseDeclinedSurvey    CloseReason = "no_quiso_calificar"
	CloseSurveySatisfied   CloseReason = "encuesta_satisfecho"
	CloseSurveyUnsatisfied CloseReason = "encuesta_no_satisfecho"
)

// Satisfaction is the answer to the satisfaction survey.
type Satisfaction string

const (
	Satisfied   Satisfaction = "satisfecho"
	Unsatisfied Satisfaction = "no_satisfecho"
)
