package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/marketplace-capture/cleaning"
)

func newCleanCmd() *cobra.Command {
	var profile string
	var window int

	cmd := &cobra.Command{
		Use:   "clean <file.csv|file.xlsx>",
		Short: "Clean an exported sheet and write <name>_depurado.csv next to it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cleaning.ProfileByName(profile)
			if err != nil {
				return err
			}
			if m, ok := p.(*cleaning.Marketplace); ok && cmd.Flags().Changed("dedupe-window") {
				m.DedupeWindow = window
			}
			rep, err := cleaning.CleanFile(args[0], p)
			if err != nil {
				return fmt.Errorf("clean %s: %w", args[0], err)
			}
			printCleanReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "marketplace", "Cleaning profile: "+strings.Join(cleaning.ProfileNames(), ", "))
	cmd.Flags().IntVar(&window, "dedupe-window", cleaning.DefaultDedupeWindow, "Distinct keys remembered when dropping duplicates")
	return cmd
}
