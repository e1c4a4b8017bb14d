package card

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Suit is one of the four Spanish-deck suits.
type Suit string

const (
	Oros    Suit = "oros"
	Copas   Suit = "copas"
	Espadas Suit = "espadas"
	Bastos  Suit = "bastos"
)

// Suits lists every suit in deck-building order.
var Suits = []Suit{Oros, Copas, Espadas, Bastos}

// suitLabels maps suits to their display form.
var suitLabels = map[Suit]string{
	Oros:    "Oros",
	Copas:   "Copas",
	Espadas: "Espadas",
	Bastos:  "Bastos",
}

// Label returns the capitalized display name of the suit.
func (s Suit) Label() string {
	if label, ok := suitLabels[s]; ok {
		return label
	}
	return string(s)
}

// Valid reports whether s is one of the four deck suits.
func (s Suit) Valid() bool {
	_, ok := suitLabels[s]
	return ok
}

// Values lists the ten values of a Spanish deck (no 8s or 9s).
var Values = []int{1, 2, 3, 4, 5, 6, 7, 10, 11, 12}

// valueNames maps values to their spoken names for log lines.
var valueNames = map[int]string{
	1:  "As",
	2:  "Dos",
	3:  "Tres",
	4:  "Cuatro",
	5:  "Cinco",
	6:  "Seis",
	7:  "Siete",
	10: "Diez",
	11: "Once",
	12: "Doce",
}

// Card is a single immutable card. The ID is unique within a deck and is
// what clients reference when playing.
type Card struct {
	ID    string `json:"id"`
	Suit  Suit   `json:"suit"`
	Value int    `json:"value"`
}

// IsAction reports whether playing the card triggers a special effect.
func (c Card) IsAction() bool {
	switch c.Value {
	case 2, 4, 10, 11, 12:
		return true
	}
	return false
}

// Describe returns the card's spoken form, e.g. "Diez de oros".
func (c Card) Describe() string {
	return valueNames[c.Value] + " de " + string(c.Suit)
}

// NewDeck builds the full 40-card deck, freshly shuffled.
func NewDeck() []Card {
	deck := make([]Card, 0, len(Suits)*len(Values))
	for _, s := range Suits {
		for _, v := range Values {
			deck = append(deck, Card{ID: uuid.NewString(), Suit: s, Value: v})
		}
	}
	Shuffle(deck)
	return deck
}

// Shuffle permutes cards in place, every permutation equally likely.
func Shuffle(cards []Card) {
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}
