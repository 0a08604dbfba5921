package fingerprint

import (
	"math/rand"
	"time"
)

// Keystroke is one simulated keypress: the character to send (or the
// backspace sentinel) and the delay before sending it.
type Keystroke struct {
	Char      rune
	Backspace bool
	Delay     time.Duration
}

const (
	typoRate          = 0.03
	interBurstPauseP  = 0.10
)

var adjacentKeys = map[rune][]rune{
	'a': {'s', 'q', 'z'}, 'b': {'v', 'g', 'n'}, 'c': {'x', 'd', 'v'},
	'd': {'s', 'f', 'e'}, 'e': {'w', 'r', 'd'}, 'f': {'d', 'g', 'r'},
	'g': {'f', 'h', 't'}, 'h': {'g', 'j', 'y'}, 'i': {'u', 'o', 'k'},
	'j': {'h', 'k', 'u'}, 'k': {'j', 'l', 'i'}, 'l': {'k', 'o'},
	'm': {'n', 'j'}, 'n': {'b', 'm', 'h'}, 'o': {'i', 'p', 'l'},
	'p': {'o', 'l'}, 'q': {'w', 'a'}, 'r': {'e', 't', 'f'},
	's': {'a', 'd', 'w'}, 't': {'r', 'y', 'g'}, 'u': {'y', 'i', 'j'},
	'v': {'c', 'b', 'f'}, 'w': {'q', 'e', 's'}, 'x': {'z', 'c', 's'},
	'y': {'t', 'u', 'h'}, 'z': {'a', 'x'},
}

// GenerateTyping expands text into a keystroke stream at the given words-
// per-minute rate, inserting an adjacent-key typo followed by a backspace
// 3% of the time and a longer inter-burst pause 10% of the time between
// characters, matching spec.md §4.4's typing behavior.
func GenerateTyping(text string, wpm int) []Keystroke {
	if wpm <= 0 {
		wpm = 40
	}
	// Average 5 chars/word; delay per character in ms.
	baseDelayMs := 60000.0 / (float64(wpm) * 5.0)

	var out []Keystroke
	for _, ch := range text {
		delay := time.Duration((baseDelayMs*0.7 + rand.Float64()*baseDelayMs*0.6) * float64(time.Millisecond))

		if rand.Float64() < typoRate {
			if candidates, ok := adjacentKeys[toLowerRune(ch)]; ok && len(candidates) > 0 {
				wrong := candidates[rand.Intn(len(candidates))]
				out = append(out, Keystroke{Char: wrong, Delay: delay})
				out = append(out, Keystroke{Backspace: true, Delay: delay / 2})
			}
		}

		out = append(out, Keystroke{Char: ch, Delay: delay})

		if rand.Float64() < interBurstPauseP {
			out = append(out, Keystroke{Delay: time.Duration(200+rand.Intn(400)) * time.Millisecond})
		}
	}
	return out
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}
