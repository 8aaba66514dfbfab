package sequencer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoBlocks       = errors.New("no trial blocks")
	ErrOddBlock       = errors.New("block needs an even number of words")
	ErrEmptyWord      = errors.New("block contains an empty word")
	ErrBadDuration    = errors.New("durations must be positive")
	ErrBadRepetitions = errors.New("repetitions must not be negative")
	ErrMissingSubject = errors.New("subject name is required")
)

const (
	DefaultRepetitions = 5
	DefaultSettleDelay = time.Second
)

// Block is a word list read as consecutive pairs.
type Block struct {
	Name  string   `yaml:"name"`
	Words []string `yaml:"words"`
}

func (b Block) Validate() error {
	switch {
	case len(b.Words) == 0:
		return fmt.Errorf("block %q: %w", b.Name, ErrOddBlock)
	case len(b.Words)%2 != 0:
		return fmt.Errorf("block %q has %d words: %w", b.Name, len(b.Words), ErrOddBlock)
	}
	for i, w := range b.Words {
		if strings.TrimSpace(w) == "" {
			return fmt.Errorf("block %q word %d: %w", b.Name, i+1, ErrEmptyWord)
		}
	}
	return nil
}

// Config is one experiment run as the operator asked for it.
type Config struct {
	SubjectName    string
	CursorDuration time.Duration
	WordDuration   time.Duration
	Blocks         []Block
	// Repetitions is how often the whole block list is presented. Zero means 5.
	Repetitions int
	Shuffle     ShuffleMode
}

func (c Config) withDefaults() Config {
	if c.Repetitions == 0 {
		c.Repetitions = DefaultRepetitions
	}
	if c.Shuffle == "" {
		c.Shuffle = ShuffleWords
	}
	return c
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SubjectName) == "" {
		return ErrMissingSubject
	}
	if c.CursorDuration <= 0 || c.WordDuration <= 0 {
		return ErrBadDuration
	}
	if c.Repetitions < 0 {
		return ErrBadRepetitions
	}
	if len(c.Blocks) == 0 {
		return ErrNoBlocks
	}
	for _, b := range c.Blocks {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	if _, err := ParseShuffleMode(string(c.Shuffle)); err != nil {
		return err
	}
	return nil
}

// Phase is one display state held for Duration.
type Phase struct {
	Index    int
	Text     string
	Color    string
	Duration time.Duration
	Role     Role

	Repetition int    // 1-based pass over the block list
	Block      string // block name; empty for boundary crosses
	Pair       int    // 1-based pair within the block; 0 for boundary crosses
	First      string
	Second     string
	Word       int
	Again      bool
	Note       string
	// PairStart marks the first phase of a pair.
	PairStart bool
}

// Describe is the run log text of the phase.
func (p Phase) Describe() string {
	secs := seconds(p.Duration)
	if p.Role == RoleCross {
		return fmt.Sprintf("Displayed cross ('%s') for %s seconds (%s)", CrossText, secs, p.Note)
	}
	ordinal := "first"
	if p.Word == 2 {
		ordinal = "second"
	}
	again := ""
	if p.Again {
		again = " again"
	}
	return fmt.Sprintf("Displayed %s word '%s'%s for %s seconds", ordinal, p.Text, again, secs)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// PlannedBlock is one shuffled presentation of a block.
type PlannedBlock struct {
	Name       string
	Repetition int
	Words      []string
}

// Plan is the complete timeline of a run, fixed before the run starts.
type Plan struct {
	Blocks []PlannedBlock
	Phases []Phase
}

// Sequence is the presented word order across every planned block.
func (p Plan) Sequence() []string {
	var out []string
	for _, b := range p.Blocks {
		out = append(out, b.Words...)
	}
	return out
}

// Duration is the sum of all phase durations.
func (p Plan) Duration() time.Duration {
	var total time.Duration
	for _, ph := range p.Phases {
		total += ph.Duration
	}
	return total
}

// Build shuffles every block of every repetition and expands it into phases.
// Consecutive blocks are separated by one standalone cross.
func Build(cfg Config, sh *Shuffler) (Plan, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	var plan Plan
	for rep := 1; rep <= cfg.Repetitions; rep++ {
		for _, b := range cfg.Blocks {
			if len(plan.Blocks) > 0 {
				plan.Phases = append(plan.Phases, Phase{
					Text: CrossText, Color: ColorCross, Duration: cfg.CursorDuration,
					Role: RoleCross, Repetition: rep, Note: boundaryNote,
				})
			}
			words := sh.Shuffle(b.Words, cfg.Shuffle)
			plan.Blocks = append(plan.Blocks, PlannedBlock{Name: b.Name, Repetition: rep, Words: words})
			plan.Phases = append(plan.Phases, pairPhases(cfg, rep, b.Name, words)...)
		}
	}
	for i := range plan.Phases {
		plan.Phases[i].Index = i
	}
	return plan, nil
}

func pairPhases(cfg Config, rep int, block string, words []string) []Phase {
	out := make([]Phase, 0, len(words)/2*len(PairOrder))
	for i := 0; i+1 < len(words); i += 2 {
		first, second := words[i], words[i+1]
		for j, step := range PairOrder {
			ph := Phase{
				Color: step.Color, Role: step.Role, Repetition: rep, Block: block,
				Pair: i/2 + 1, First: first, Second: second,
				Word: step.Word, Again: step.Again, Note: step.Note,
				PairStart: j == 0,
			}
			switch step.Word {
			case 1:
				ph.Text, ph.Duration = first, cfg.WordDuration
			case 2:
				ph.Text, ph.Duration = second, cfg.WordDuration
			default:
				ph.Text, ph.Duration = CrossText, cfg.CursorDuration
			}
			out = append(out, ph)
		}
	}
	return out
}
