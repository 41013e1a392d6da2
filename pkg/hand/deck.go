package hand

import "math/rand"

// NewDeck returns a shuffled 52-card deck. Cards are plain indices 0..51;
// seat i is dealt deck[2i] and deck[2i+1], the board lives at 20..24.
func NewDeck() []int {
	deck := make([]int, 52)
	for i := range deck {
		deck[i] = i
	}
	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}
