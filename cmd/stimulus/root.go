package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
	"github.com/DoyleJ11/eeg-stimulus/internal/stimuli"
)

// runFlags are shared by every command that builds a timeline.
type runFlags struct {
	subject     string
	cursor      time.Duration
	word        time.Duration
	repetitions int
	shuffle     string
	wordsFile   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "Test1", "Subject name")
	cmd.Flags().DurationVar(&f.cursor, "cursor", 250*time.Millisecond, "How long each fixation cross is shown")
	cmd.Flags().DurationVar(&f.word, "word", time.Second, "How long each word is shown")
	cmd.Flags().IntVarP(&f.repetitions, "repetitions", "r", 0, "Passes over the block list (default from the word list)")
	cmd.Flags().StringVar(&f.shuffle, "shuffle", "", "Shuffle mode: words or pairs (default from the word list)")
	cmd.Flags().StringVarP(&f.wordsFile, "words", "w", "", "YAML word list (default: built-in list)")
}

func (f *runFlags) config() (sequencer.Config, error) {
	words, err := stimuli.Load(f.wordsFile)
	if err != nil {
		return sequencer.Config{}, err
	}
	cfg := words.Config(sequencer.Config{
		SubjectName:    f.subject,
		CursorDuration: f.cursor,
		WordDuration:   f.word,
		Repetitions:    f.repetitions,
	})
	if f.shuffle != "" {
		mode, err := sequencer.ParseShuffleMode(f.shuffle)
		if err != nil {
			return sequencer.Config{}, err
		}
		cfg.Shuffle = mode
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "stimulus",
		Short:         "Present a word stimulus sequence while the backend records EEG",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	return rootCmd
}
