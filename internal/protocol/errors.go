package protocol

// Error codes carried by actionError payloads.
const (
	ErrCodeUnknown    = 1000
	ErrCodeInvalidMsg = 1001

	ErrCodeRoomNotFound           = 1100
	ErrCodeNotInRoom              = 1101
	ErrCodeMatchInProgress        = 1102
	ErrCodeNotHost                = 1103
	ErrCodeAlreadyStarted         = 1104
	ErrCodeInsufficientPlayers    = 1105
	ErrCodeUnsupportedPlayerCount = 1106

	ErrCodeNotYourTurn          = 1200
	ErrCodeCardNotInHand        = 1201
	ErrCodeCardNotPlayable      = 1202
	ErrCodePendingDraw          = 1203
	ErrCodeRepeatConstraint     = 1204
	ErrCodeMissingSuitChoice    = 1205
	ErrCodeNotEligible          = 1206
	ErrCodeInvalidTarget        = 1207

	ErrCodeDeckExhausted = 1300
)

// GameError is a rules or precondition failure surfaced verbatim to the
// requesting connection.
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// Predefined errors. Messages are the player-facing Spanish texts.
var (
	ErrRoomNotFound           = &GameError{Code: ErrCodeRoomNotFound, Message: "La sala seleccionada ya no existe"}
	ErrNotInRoom              = &GameError{Code: ErrCodeNotInRoom, Message: "Necesitas unirte a una sala primero"}
	ErrMatchInProgress        = &GameError{Code: ErrCodeMatchInProgress, Message: "La partida está en curso. Esperá a la siguiente ronda para unirte."}
	ErrNotHost                = &GameError{Code: ErrCodeNotHost, Message: "Solo el anfitrión puede realizar esta acción"}
	ErrAlreadyStarted         = &GameError{Code: ErrCodeAlreadyStarted, Message: "La partida ya comenzó"}
	ErrInsufficientPlayers    = &GameError{Code: ErrCodeInsufficientPlayers, Message: "Se necesitan al menos dos jugadores"}
	ErrUnsupportedPlayerCount = &GameError{Code: ErrCodeUnsupportedPlayerCount, Message: "Cantidad de jugadores no soportada"}

	ErrNotYourTurn                = &GameError{Code: ErrCodeNotYourTurn, Message: "No es tu turno"}
	ErrCardNotInHand              = &GameError{Code: ErrCodeCardNotInHand, Message: "Carta no encontrada en tu mano"}
	ErrCardNotPlayable            = &GameError{Code: ErrCodeCardNotPlayable, Message: "La carta no coincide con el palo o número actual"}
	ErrMustRespondToPendingDraw   = &GameError{Code: ErrCodePendingDraw, Message: "Debes responder al 2 con otro 2 o robar"}
	ErrMustFollowRepeatConstraint = &GameError{Code: ErrCodeRepeatConstraint, Message: "Debes repetir con el mismo palo o con un 11"}
	ErrMissingSuitChoice          = &GameError{Code: ErrCodeMissingSuitChoice, Message: "Debes elegir un palo válido para el comodín 10"}
	ErrNotEligible                = &GameError{Code: ErrCodeNotEligible, Message: "Solo puedes avisar cuando tienes una carta"}
	ErrInvalidTarget              = &GameError{Code: ErrCodeInvalidTarget, Message: "No aplica el jodete en este momento"}

	// ErrDeckExhausted means the card-conservation invariant broke. The
	// handler logs it loudly and sends the generic text instead.
	ErrDeckExhausted = &GameError{Code: ErrCodeDeckExhausted, Message: "No quedan cartas en el mazo"}

	ErrUnknown = &GameError{Code: ErrCodeUnknown, Message: "Ocurrió un error inesperado"}
)
