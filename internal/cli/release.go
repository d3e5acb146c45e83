package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newReleaseCommand(a *app) *cobra.Command {
	var (
		host string
		pid  int
	)

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the lock held by a given host and process",
		Long: `Release the lock on behalf of its holder. The host and process id must
match the current record exactly; anything else is refused and the
record is left in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				h, err := os.Hostname()
				if err != nil {
					return fmt.Errorf("hostname: %w", err)
				}
				host = h
			}
			if err := a.mgr.Release(cmd.Context(), host, pid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Released lock of %s (pid %d)\n", host, pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "holder host (default is this machine)")
	cmd.Flags().IntVar(&pid, "pid", 0, "holder process id")
	_ = cmd.MarkFlagRequired("pid")
	return cmd
}
