package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orderguard/backend/config"
	"github.com/orderguard/backend/internal/domain"
	"github.com/orderguard/backend/internal/infrastructure/llm"
	"github.com/orderguard/backend/internal/infrastructure/spreadsheet"
	"github.com/orderguard/backend/internal/usecase"
	"github.com/spf13/cobra"
)

// reconcileOptions are the flags of the reconcile command
type reconcileOptions struct {
	priceBookPath string
	poPath        string
	bookName      string
	exportPath    string
	asJSON        bool
}

func reconcileCmd() *cobra.Command {
	var opts reconcileOptions

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check a purchase order PDF against a price book spreadsheet",
		Long: `Extract the line items of a purchase order PDF with the configured LLM,
compare them with a price book spreadsheet and print the email report.
Nothing is stored.

Examples:
  orderguard reconcile --pricebook prices.xlsx --po PO-1042.pdf
  orderguard reconcile --pricebook prices.xlsx --po PO-1042.pdf --export results.xlsx --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			// Keep stdout for the report
			logger.SetOutput(cmd.ErrOrStderr())

			extractor, err := llm.NewClient(llm.Config{
				Provider:          cfg.LLM.Provider,
				APIKey:            cfg.LLM.APIKey,
				BaseURL:           cfg.LLM.BaseURL,
				Model:             cfg.LLM.Model,
				Timeout:           cfg.LLM.Timeout,
				MaxAttempts:       cfg.LLM.MaxAttempts,
				RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			}, logger)
			if err != nil {
				return err
			}

			return runReconcile(cmd.Context(), cmd.OutOrStdout(), opts, spreadsheet.NewParser(), extractor, spreadsheet.NewExporter())
		},
	}

	cmd.Flags().StringVarP(&opts.priceBookPath, "pricebook", "b", "", "price book spreadsheet (.xlsx)")
	cmd.Flags().StringVarP(&opts.poPath, "po", "p", "", "purchase order (.pdf)")
	cmd.Flags().StringVarP(&opts.bookName, "name", "n", "", "price book name used in the report (default: file name)")
	cmd.Flags().StringVarP(&opts.exportPath, "export", "o", "", "also write the results to this .xlsx file")
	cmd.Flags().BoolVarP(&opts.asJSON, "json", "j", false, "print the processed order as JSON instead of the email")
	_ = cmd.MarkFlagRequired("pricebook")
	_ = cmd.MarkFlagRequired("po")

	return cmd
}

// runReconcile performs one reconciliation without touching storage
func runReconcile(
	ctx context.Context,
	out io.Writer,
	opts reconcileOptions,
	parser domain.PriceBookParser,
	extractor domain.DocumentExtractor,
	exporter domain.ResultExporter,
) error {
	book, err := os.Open(opts.priceBookPath)
	if err != nil {
		return fmt.Errorf("open price book: %w", err)
	}
	defer book.Close()

	imported, err := parser.ParsePriceBook(book)
	if err != nil {
		return err
	}
	if len(imported.Items) == 0 {
		return domain.ErrEmptyPriceBook
	}

	pdf, err := os.ReadFile(opts.poPath)
	if err != nil {
		return fmt.Errorf("read purchase order: %w", err)
	}

	lines, err := extractor.Extract(ctx, pdf)
	if err != nil {
		return err
	}

	results, err := usecase.Reconcile(lines, domain.PriceMap(imported.Items))
	if err != nil {
		return err
	}

	name := opts.bookName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(opts.priceBookPath), filepath.Ext(opts.priceBookPath))
	}

	po := &domain.ProcessedPO{
		ID:            uuid.New(),
		Filename:      filepath.Base(opts.poPath),
		PriceBookName: name,
		ProcessedAt:   time.Now().UTC(),
		Summary:       usecase.Summarize(results),
		Results:       results,
	}

	if opts.exportPath != "" {
		data, err := exporter.ExportResults(po)
		if err != nil {
			return fmt.Errorf("export results: %w", err)
		}
		if err := os.WriteFile(opts.exportPath, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(po)
	}

	_, err = io.WriteString(out, usecase.FormatEmail(results, name))
	return err
}
