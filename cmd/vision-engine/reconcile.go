package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/technosupport/ts-vision-core/internal/manager"
	"github.com/technosupport/ts-vision-core/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile pipelines against the configuration store once and exit",
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	m, closeManager, err := buildManager(flagRulesDir)
	if err != nil {
		return err
	}
	defer closeManager()
	defer m.Stop()

	if err := reconcileOnce(ctx, st, m); err != nil {
		return err
	}

	pterm.Success.Println("reconcile complete")
	for _, s := range m.Statuses() {
		if s.Running {
			pterm.Info.Printf("%s: running (fps=%.1f)\n", s.CameraID, s.Health.FPS)
		} else {
			pterm.Warning.Printf("%s: not running (%v)\n", s.CameraID, s.LastError)
		}
	}
	return nil
}

// reconcileOnce lists the current desired state from the store and
// applies it to m, returning a combined error if any camera failed.
func reconcileOnce(ctx context.Context, st *store.PostgresStore, m *manager.Manager) error {
	recs, err := st.ListVideoSources(ctx)
	if err != nil {
		return fmt.Errorf("list video sources: %w", err)
	}

	if errs := m.Reconcile(ctx, toVideoSources(recs)); len(errs) > 0 {
		return fmt.Errorf("%d camera(s) failed to reconcile: %v", len(errs), errs)
	}
	return nil
}
