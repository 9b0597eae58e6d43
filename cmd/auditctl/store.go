package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/expense-auditor/internal/repository"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the execution store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.require(root.cfg.Store); err != nil {
				return err
			}
			if root.cfg.Store.Driver == "mongo" {
				fmt.Fprintln(cmd.OutOrStdout(), "mongo store needs no migration")
				return nil
			}
			db, err := repository.Open(cmd.Context(), root.cfg.Store, root.logger.Named("store"))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := repository.Migrate(cmd.Context(), db, root.logger.Named("store")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", root.cfg.Store.Driver)
			return nil
		},
	}
}

func newDBHealthCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Check that the execution store is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.require(root.cfg.Store); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			repo, closeStore, err := repository.OpenStore(ctx, root.cfg.Store, root.logger.Named("store"))
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(context.Background()) }()

			start := time.Now()
			if err := repo.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s OK (%s)\n", root.cfg.Store.Driver, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall check timeout")
	return cmd
}
