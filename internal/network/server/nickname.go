package server

import (
	"math/rand/v2"
)

// Nickname word lists for players that connect without a name.
var (
	nicknameNouns = []string{
		"Zorro", "Puma", "Cóndor", "Lobo", "Tigre",
		"Gato", "Búho", "Halcón", "Oso", "Jaguar",
		"Carpincho", "Ñandú", "Vizcacha", "Yacaré", "Hornero",
	}

	nicknameAdjectives = []string{
		"Valiente", "Astuto", "Veloz", "Tranquilo", "Pícaro",
		"Feroz", "Sereno", "Audaz", "Curioso", "Fugaz",
	}
)

// GenerateNickname returns a random "Zorro Astuto" style nickname.
func GenerateNickname() string {
	noun := nicknameNouns[rand.IntN(len(nicknameNouns))]
	adj := nicknameAdjectives[rand.IntN(len(nicknameAdjectives))]
	return noun + " " + adj
}
