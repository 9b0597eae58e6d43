package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/app"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
	"github.com/joseph-ayodele/expense-auditor/internal/ingest"
	"github.com/joseph-ayodele/expense-auditor/internal/repository"
	"github.com/joseph-ayodele/expense-auditor/internal/services/audit"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		expenses  string
		reference string
		agentID   string
		format    string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one audit session and record it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := root.logger

			repo, closeStore, err := repository.OpenStore(ctx, root.cfg.Store, logger.Named("store"))
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(context.Background()); err != nil {
					logger.Warn("store.close.failed", zap.Error(err))
				}
			}()

			components := app.Build(root.cfg, nil, logger)
			svc := audit.NewService(audit.Config{
				ValidationMode:  root.cfg.Validation.Mode,
				AmountThreshold: root.cfg.Validation.AmountThreshold,
				SessionTimeout:  root.cfg.Queue.SessionTimeout,
			}, repo, components.Orchestrator, nil, logger.Named("audit"))

			req := audit.SessionRequest{
				AgentID:            agentID,
				ExpenseLocation:    expenses,
				ReferenceLocation:  reference,
				ExpenseDocuments:   listNames(ctx, components.Source, expenses),
				ReferenceDocuments: listNames(ctx, components.Source, reference),
			}
			exec, runErr := svc.Run(ctx, req)
			if exec == nil {
				return runErr
			}

			w, closeOut, err := openOutput(cmd.OutOrStdout(), output)
			if err != nil {
				return err
			}
			defer closeOut()

			if format == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(exec); err != nil {
					return err
				}
				return runErr
			}
			if runErr != nil {
				return runErr
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := export.NewService(root.cfg.Validation.Currency, logger.Named("export")).Render(ctx, exec, f)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&expenses, "expenses", "", "directory of expense documents")
	cmd.Flags().StringVar(&reference, "reference", "", "directory holding the travel authorization")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent identifier recorded with the execution")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json, pdf or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("expenses")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

// listNames returns the document names recorded in the input summary. Listing errors surface
// again when the pipeline reads the location, so they are ignored here.
func listNames(ctx context.Context, src ingest.Source, location string) []string {
	files, _, err := src.List(ctx, location)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func openOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
