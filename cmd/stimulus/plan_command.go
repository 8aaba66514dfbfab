package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
)

func newPlanCommand() *cobra.Command {
	var flags runFlags
	var seed uint64

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the timeline a run would present",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			sh := sequencer.RandomShuffler()
			if cmd.Flags().Changed("seed") {
				sh = sequencer.NewShuffler(seed)
			}
			plan, err := sequencer.Build(cfg, sh)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(plan))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Shuffle seed for a reproducible plan")
	return cmd
}

func renderPlan(plan sequencer.Plan) string {
	rows := make([][]string, 0, len(plan.Phases))
	for _, p := range plan.Phases {
		pair := ""
		if p.Pair > 0 {
			pair = strconv.Itoa(p.Pair)
		}
		rows = append(rows, []string{
			strconv.Itoa(p.Index + 1),
			strconv.Itoa(p.Repetition),
			p.Block,
			pair,
			p.Text,
			p.Color,
			p.Duration.String(),
		})
	}
	table := renderTable(
		[]string{"#", "Rep", "Block", "Pair", "Shown", "Color", "For"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
	)
	return fmt.Sprintf("%s\n%d phases, %s total", table, len(plan.Phases), plan.Duration())
}
