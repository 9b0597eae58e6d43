package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/expense-auditor/internal/app"
	"github.com/joseph-ayodele/expense-auditor/internal/document"
	"github.com/joseph-ayodele/expense-auditor/internal/llm"
)

func newDecomposeCmd(root *rootOptions) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "decompose FILE",
		Short: "Rasterize a document into page images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.require(root.cfg.Decompose); err != nil {
				return err
			}
			d := document.NewDecomposer(document.Config{
				Pdftoppm:      root.cfg.Decompose.Pdftoppm,
				HeicConverter: root.cfg.Decompose.HeicConverter,
				DPI:           root.cfg.Decompose.DPI,
				MaxPages:      root.cfg.Decompose.MaxPages,
			}, nil, root.logger.Named("decomposer"))

			path := args[0]
			pages, err := d.Decompose(cmd.Context(), document.Document{Name: filepath.Base(path), Path: path})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range pages {
				line := fmt.Sprintf("%s\tpage %d\t%s\t%d bytes", p.Document, p.Index, p.MIMEType, len(p.Data))
				if outDir != "" {
					name := filepath.Join(outDir, fmt.Sprintf("%s-%03d%s", strings.TrimSuffix(p.Document, filepath.Ext(p.Document)), p.Index, pageExt(p.MIMEType)))
					if err := os.WriteFile(name, p.Data, 0o644); err != nil {
						return err
					}
					line += "\t" + name
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write page images into this directory")
	return cmd
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract structured fields from every page of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			schema := llm.SchemaKind(kind)
			if schema != llm.SchemaExpense && schema != llm.SchemaReference {
				return fmt.Errorf("--kind must be %q or %q", llm.SchemaExpense, llm.SchemaReference)
			}
			components := app.Build(root.cfg, nil, root.logger)

			path := args[0]
			name := filepath.Base(path)
			pages, err := components.Decomposer.Decompose(cmd.Context(), document.Document{Name: name, Path: path})
			if err != nil {
				return err
			}

			type pageResult struct {
				Page   int        `json:"page"`
				Fields llm.Fields `json:"fields,omitempty"`
				Error  string     `json:"error,omitempty"`
			}
			results := make([]pageResult, 0, len(pages))
			for _, p := range pages {
				fields, err := components.Extractor.Extract(cmd.Context(), llm.Image{
					Name:     fmt.Sprintf("%s#%d", name, p.Index),
					MIMEType: p.MIMEType,
					Data:     p.Data,
				}, schema)
				r := pageResult{Page: p.Index, Fields: fields}
				if err != nil {
					r.Error = err.Error()
				}
				results = append(results, r)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(llm.SchemaExpense), "expense or reference")
	return cmd
}

func pageExt(mime string) string {
	if mime == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}
