package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who holds the database lock",
		Long: `Display the live holder of the lock, if any. A lock whose holder
stopped heartbeating longer than the staleness window is reported as stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd)
		},
	}
}

func (a *app) runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	state, info, err := a.mgr.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database: %s\n", a.cfg.Database.Path)
	fmt.Fprintf(out, "State: %s\n", state)
	if info == nil {
		return nil
	}

	fmt.Fprintf(out, "Holder: %s (pid %d)\n", info.Holder(), info.PID)
	fmt.Fprintf(out, "Acquired: %s\n", info.AcquiredAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Last heartbeat: %s ago\n", info.HeartbeatAge.Truncate(time.Second))
	if info.ClientVersion != "" {
		fmt.Fprintf(out, "Client version: %s\n", info.ClientVersion)
	}
	return nil
}
