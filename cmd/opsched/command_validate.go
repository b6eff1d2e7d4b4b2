package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a workload file without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := loadWorkload(path)
			if err != nil {
				return err
			}
			low, normal, critical := w.counts()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d processes (%d critical, %d normal, %d low) OK\n",
				w.Name, len(w.Processes), critical, normal, low)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "workload", "w", "", "workload YAML file")
	_ = cmd.MarkFlagRequired("workload")
	return cmd
}
