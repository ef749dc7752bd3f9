package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nightshift-games/checkpoint/internal/config"
	"github.com/nightshift-games/checkpoint/internal/report"
)

var (
	exportOut       string
	exportSessionID string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session report as XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Validate(cfg, "export"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cat, err := initCatalog()
		if err != nil {
			return err
		}

		snap, err := st.LatestSnapshot(ctx, exportSessionID)
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("no snapshot for session %s", exportSessionID)
		}

		decisions, err := st.ListDecisions(ctx, exportSessionID, cat.SubjectCount())
		if err != nil {
			return err
		}
		alerts, err := st.ListAlerts(ctx, exportSessionID, cat.SubjectCount())
		if err != nil {
			return err
		}

		r := report.Report{
			Snapshot:  *snap,
			Decisions: decisions,
			Alerts:    alerts,
			ShiftSize: cat.ShiftSize(),
		}
		if err := report.Write(exportOut, r); err != nil {
			return err
		}

		fmt.Printf("wrote %s (%d decisions, %d alerts)\n", exportOut, len(decisions), len(alerts))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "session-report.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportSessionID, "session", "default", "session id")
	rootCmd.AddCommand(exportCmd)
}
