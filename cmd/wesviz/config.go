package main

import (
	"fmt"
	"os"

	"github.com/cactusdynamics/wesviz"
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(_ *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with visualization config documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in visualization config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := wesviz.SerializeConfig(wesviz.DefaultVisualizations())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "fmt <file>",
		Short: "Check a config file and print it in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			visualizations, err := wesviz.DeserializeConfig(string(data))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			text, err := wesviz.SerializeConfig(visualizations)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	})

	return cmd
}
