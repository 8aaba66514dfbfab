// Package stimuli loads the word blocks presented during a run.
package stimuli

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
)

//go:embed default.yaml
var defaultYAML []byte

// Set is a word-list file: blocks plus presentation defaults.
type Set struct {
	Repetitions int               `yaml:"repetitions"`
	Shuffle     string            `yaml:"shuffle"`
	Blocks      []sequencer.Block `yaml:"blocks"`
}

// Default returns the built-in homophone and synonym blocks.
func Default() Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("stimuli: embedded default is invalid: %v", err))
	}
	return s
}

// Load reads a word-list file. An empty path yields Default.
func Load(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read word list: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Set{}, fmt.Errorf("word list %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a word-list document. Words are trimmed and
// NFC-normalized so visually identical words compare equal in the logs.
func Parse(data []byte) (Set, error) {
	var s Set
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Set{}, fmt.Errorf("decode yaml: %w", err)
	}
	if len(s.Blocks) == 0 {
		return Set{}, sequencer.ErrNoBlocks
	}
	if s.Repetitions < 0 {
		return Set{}, sequencer.ErrBadRepetitions
	}
	if _, err := sequencer.ParseShuffleMode(s.Shuffle); err != nil {
		return Set{}, err
	}
	for i := range s.Blocks {
		b := &s.Blocks[i]
		if b.Name == "" {
			b.Name = fmt.Sprintf("block-%d", i+1)
		}
		for j, w := range b.Words {
			b.Words[j] = norm.NFC.String(strings.TrimSpace(w))
		}
		if err := b.Validate(); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

// Config fills a sequencer config with the set's blocks and defaults. Values
// already set on base win.
func (s Set) Config(base sequencer.Config) sequencer.Config {
	base.Blocks = s.Blocks
	if base.Repetitions == 0 {
		base.Repetitions = s.Repetitions
	}
	if base.Shuffle == "" {
		base.Shuffle = sequencer.ShuffleMode(s.Shuffle)
	}
	return base
}
