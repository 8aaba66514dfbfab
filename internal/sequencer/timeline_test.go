package sequencer

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowerConfig() Config {
	return Config{
		SubjectName:    "Test1",
		CursorDuration: 250 * time.Millisecond,
		WordDuration:   time.Second,
		Blocks:         []Block{{Name: "homophones", Words: []string{"Flower", "Flour"}}},
		Repetitions:    1,
	}
}

func TestBuild_SinglePairTimeline(t *testing.T) {
	plan, err := Build(flowerConfig(), NewShuffler(1))
	require.NoError(t, err)

	type shown struct {
		text, color string
		d           time.Duration
	}
	var got []shown
	for _, ph := range plan.Phases {
		got = append(got, shown{ph.Text, ph.Color, ph.Duration})
	}

	first, second := plan.Blocks[0].Words[0], plan.Blocks[0].Words[1]
	cross := shown{"+", "black", 250 * time.Millisecond}
	assert.Equal(t, []shown{
		cross, {first, "lightblue", time.Second},
		cross, {first, "blue", time.Second},
		cross, {second, "lightblue", time.Second},
		cross, {second, "blue", time.Second},
	}, got)
	assert.Equal(t, 5*time.Second, plan.Duration())
	assert.True(t, plan.Phases[0].PairStart)
	assert.ElementsMatch(t, []string{"Flower", "Flour"}, plan.Sequence())
}

func TestBuild_PhaseCounts(t *testing.T) {
	cases := []struct {
		name        string
		blocks      []Block
		repetitions int
		want        int
	}{
		{
			name:        "one block once",
			blocks:      []Block{{Name: "a", Words: []string{"a", "b", "c", "d"}}},
			repetitions: 1,
			want:        16,
		},
		{
			name: "two blocks once",
			blocks: []Block{
				{Name: "a", Words: []string{"a", "b", "c", "d"}},
				{Name: "b", Words: []string{"e", "f"}},
			},
			repetitions: 1,
			want:        16 + 1 + 8,
		},
		{
			name: "two blocks three times",
			blocks: []Block{
				{Name: "a", Words: []string{"a", "b", "c", "d"}},
				{Name: "b", Words: []string{"e", "f"}},
			},
			repetitions: 3,
			want:        3*(16+8) + 5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := flowerConfig()
			cfg.Blocks = tc.blocks
			cfg.Repetitions = tc.repetitions

			plan, err := Build(cfg, NewShuffler(7))
			require.NoError(t, err)
			assert.Len(t, plan.Phases, tc.want)

			boundaries := 0
			for i, ph := range plan.Phases {
				assert.Equal(t, i, ph.Index)
				if ph.Pair == 0 {
					boundaries++
					assert.Equal(t, CrossText, ph.Text)
					assert.Equal(t, cfg.CursorDuration, ph.Duration)
				}
			}
			assert.Equal(t, len(tc.blocks)*tc.repetitions-1, boundaries)
			assert.NotZero(t, plan.Phases[len(plan.Phases)-1].Pair, "no trailing boundary cross")
		})
	}
}

func TestBuild_DefaultsToFiveRepetitions(t *testing.T) {
	cfg := flowerConfig()
	cfg.Repetitions = 0
	plan, err := Build(cfg, NewShuffler(3))
	require.NoError(t, err)
	assert.Len(t, plan.Blocks, 5)
	assert.Len(t, plan.Phases, 5*8+4)
}

func TestPlan_SequenceIsWordOrderWithoutCrosses(t *testing.T) {
	cfg := flowerConfig()
	cfg.Repetitions = 2
	cfg.Blocks = append(cfg.Blocks, Block{Name: "synonyms", Words: []string{"Big", "Large"}})
	plan, err := Build(cfg, NewShuffler(11))
	require.NoError(t, err)

	var words []string
	for _, ph := range plan.Phases {
		if ph.Role == RoleWord && !ph.Again {
			words = append(words, ph.Text)
		}
	}
	seq := plan.Sequence()
	assert.Len(t, seq, 8)
	assert.NotContains(t, seq, CrossText)
	assert.Equal(t, words, seq, "sequence follows first showings in presentation order")
}

func TestBuild_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "odd block", mutate: func(c *Config) { c.Blocks[0].Words = []string{"a", "b", "c"} }, want: ErrOddBlock},
		{name: "empty block", mutate: func(c *Config) { c.Blocks[0].Words = nil }, want: ErrOddBlock},
		{name: "blank word", mutate: func(c *Config) { c.Blocks[0].Words = []string{"a", " "} }, want: ErrEmptyWord},
		{name: "no blocks", mutate: func(c *Config) { c.Blocks = nil }, want: ErrNoBlocks},
		{name: "zero cursor", mutate: func(c *Config) { c.CursorDuration = 0 }, want: ErrBadDuration},
		{name: "negative word", mutate: func(c *Config) { c.WordDuration = -time.Second }, want: ErrBadDuration},
		{name: "negative repetitions", mutate: func(c *Config) { c.Repetitions = -1 }, want: ErrBadRepetitions},
		{name: "no subject", mutate: func(c *Config) { c.SubjectName = "" }, want: ErrMissingSubject},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := flowerConfig()
			tc.mutate(&cfg)
			_, err := Build(cfg, NewShuffler(1))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPhase_Describe(t *testing.T) {
	plan, err := Build(flowerConfig(), NewShuffler(1))
	require.NoError(t, err)
	first, second := plan.Blocks[0].Words[0], plan.Blocks[0].Words[1]

	var got []string
	for _, ph := range plan.Phases {
		got = append(got, ph.Describe())
	}
	assert.Equal(t, []string{
		"Displayed cross ('+') for 0.25 seconds (before first word)",
		"Displayed first word '" + first + "' for 1 seconds",
		"Displayed cross ('+') for 0.25 seconds (repeating first word)",
		"Displayed first word '" + first + "' again for 1 seconds",
		"Displayed cross ('+') for 0.25 seconds (transitioning to second word)",
		"Displayed second word '" + second + "' for 1 seconds",
		"Displayed cross ('+') for 0.25 seconds (repeating second word)",
		"Displayed second word '" + second + "' again for 1 seconds",
	}, got)
}

func TestShuffle_PreservesMultiset(t *testing.T) {
	words := []string{"Pair", "Pear", "Sea", "See", "Pair", "Couple", "Sea", "See"}
	sh := NewShuffler(42)
	for _, mode := range []ShuffleMode{ShuffleWords, ShufflePairs} {
		for i := 0; i < 50; i++ {
			got := sh.Shuffle(words, mode)
			assert.ElementsMatch(t, words, got, "mode %s", mode)
		}
	}
	assert.Equal(t, []string{"Pair", "Pear", "Sea", "See", "Pair", "Couple", "Sea", "See"}, words, "input untouched")
}

func TestShuffle_PairsStayTogether(t *testing.T) {
	words := []string{"Quick", "Fast", "Smart", "Clever", "Big", "Large"}
	partner := map[string]string{"Quick": "Fast", "Smart": "Clever", "Big": "Large"}
	sh := NewShuffler(9)
	for i := 0; i < 50; i++ {
		got := sh.Shuffle(words, ShufflePairs)
		for j := 0; j < len(got); j += 2 {
			assert.Equal(t, partner[got[j]], got[j+1])
		}
	}
}

func TestShuffle_Uniform(t *testing.T) {
	words := []string{"a", "b", "c"}
	sh := NewShuffler(2024)
	const draws = 60000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		got := sh.Shuffle(words, ShuffleWords)
		counts[got[0]+got[1]+got[2]]++
	}

	require.Len(t, counts, 6, "every permutation appears")
	want := float64(draws) / 6
	for perm, n := range counts {
		assert.InEpsilon(t, want, float64(n), 0.05, "permutation %s", perm)
	}
}

func TestShuffle_SeedIsDeterministic(t *testing.T) {
	words := []string{"Flower", "Flour", "Knight", "Night", "Sun", "Son"}
	a := NewShuffler(5).Shuffle(words, ShuffleWords)
	b := NewShuffler(5).Shuffle(words, ShuffleWords)
	assert.True(t, slices.Equal(a, b))
}

func TestParseShuffleMode(t *testing.T) {
	m, err := ParseShuffleMode("")
	require.NoError(t, err)
	assert.Equal(t, ShuffleWords, m)
	m, err = ParseShuffleMode("pairs")
	require.NoError(t, err)
	assert.Equal(t, ShufflePairs, m)
	_, err = ParseShuffleMode("blocks")
	require.Error(t, err)
}

func TestRunIDs_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	ids := NewRunIDs(func() time.Time { return fixed })
	assert.Equal(t, "1700000000000", ids.Next())
	assert.Equal(t, "1700000000001", ids.Next())
	assert.Equal(t, "1700000000002", ids.Next())
}
