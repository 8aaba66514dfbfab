package stimuli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
)

func TestDefault(t *testing.T) {
	s := Default()
	require.Len(t, s.Blocks, 2)
	assert.Equal(t, 5, s.Repetitions)
	assert.Equal(t, "homophones", s.Blocks[0].Name)
	assert.Len(t, s.Blocks[0].Words, 12)
	assert.Len(t, s.Blocks[1].Words, 14)
	assert.Equal(t, []string{"Flower", "Flour"}, s.Blocks[0].Words[:2])
}

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr error
		check   func(t *testing.T, s Set)
	}{
		{
			name: "normalizes words and names blocks",
			doc:  "blocks:\n  - words: [\" Cafe\\u0301 \", Coffee]\n",
			check: func(t *testing.T, s Set) {
				assert.Equal(t, "block-1", s.Blocks[0].Name)
				assert.Equal(t, "Café", s.Blocks[0].Words[0])
			},
		},
		{name: "odd block", doc: "blocks:\n  - name: a\n    words: [x, y, z]\n", wantErr: sequencer.ErrOddBlock},
		{name: "blank word", doc: "blocks:\n  - words: [x, \"  \"]\n", wantErr: sequencer.ErrEmptyWord},
		{name: "no blocks", doc: "repetitions: 2\n", wantErr: sequencer.ErrNoBlocks},
		{name: "negative repetitions", doc: "repetitions: -1\nblocks:\n  - words: [a, b]\n", wantErr: sequencer.ErrBadRepetitions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Parse([]byte(tc.doc))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, s)
		})
	}
}

func TestParse_RejectsUnknownFieldsAndModes(t *testing.T) {
	_, err := Parse([]byte("blockz: []\n"))
	require.Error(t, err)
	_, err = Parse([]byte("shuffle: sideways\nblocks:\n  - words: [a, b]\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Len(t, s.Blocks, 2)

	path := filepath.Join(t.TempDir(), "words.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shuffle: pairs\nblocks:\n  - name: tiny\n    words: [up, down]\n"), 0o644))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pairs", s.Shuffle)

	cfg := s.Config(sequencer.Config{SubjectName: "S", Repetitions: 2})
	assert.Equal(t, 2, cfg.Repetitions)
	assert.Equal(t, sequencer.ShufflePairs, cfg.Shuffle)
	assert.Equal(t, "tiny", cfg.Blocks[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
