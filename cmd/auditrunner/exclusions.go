package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExclusionsCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "exclusions [runner]",
		Short: "List the smoke tests each runner skips",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := cli.exclusionTable()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if len(args) == 1 {
				ids, err := table.Lookup(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(w, strings.Join(ids, "\n"))
				return nil
			}

			for _, name := range table.Runners() {
				fmt.Fprintf(w, "%s: %s\n", name, strings.Join(table.For(name), ", "))
			}
			return nil
		},
	}
}
