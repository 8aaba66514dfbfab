package sequencer

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

type ShuffleMode string

const (
	// ShuffleWords permutes the flat word list, then reads consecutive pairs.
	ShuffleWords ShuffleMode = "words"
	// ShufflePairs keeps each pair together and permutes pair order.
	ShufflePairs ShuffleMode = "pairs"
)

func ParseShuffleMode(s string) (ShuffleMode, error) {
	switch ShuffleMode(s) {
	case "", ShuffleWords:
		return ShuffleWords, nil
	case ShufflePairs:
		return ShufflePairs, nil
	default:
		return "", fmt.Errorf("shuffle mode %q: want %q or %q", s, ShuffleWords, ShufflePairs)
	}
}

// Shuffler draws uniform permutations. It is safe for concurrent use.
type Shuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewShuffler returns a deterministic shuffler for seed.
func NewShuffler(seed uint64) *Shuffler {
	return &Shuffler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// RandomShuffler returns a shuffler seeded from the runtime source.
func RandomShuffler() *Shuffler {
	return NewShuffler(rand.Uint64())
}

// Shuffle returns a permuted copy of words. The input is not modified.
func (s *Shuffler) Shuffle(words []string, mode ShuffleMode) []string {
	out := append([]string(nil), words...)
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == ShufflePairs {
		n := len(out) / 2
		s.rng.Shuffle(n, func(i, j int) {
			out[2*i], out[2*j] = out[2*j], out[2*i]
			out[2*i+1], out[2*j+1] = out[2*j+1], out[2*i+1]
		})
		return out
	}
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
