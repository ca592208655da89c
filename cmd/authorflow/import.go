package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/authorflow/authorflow"
	"github.com/authorflow/authorflow/reconcile"
)

func newImportCmd() *cobra.Command {
	var (
		owner    string
		strategy string
		platform string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.csv>...",
		Short: "Merge analytics exports into the calendar",
		Long: "Reads one or more platform CSV exports and updates the performance of the\n" +
			"matching posts. The platform is taken from each file name unless --platform is set.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := authorflow.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if owner == "" {
				owner = cfg.Owner
			}
			if strategy == "" {
				strategy = cfg.Import.DefaultStrategy
			}
			strat, err := reconcile.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			files := make([]authorflow.ImportFile, 0, len(args))
			for _, path := range args {
				f, err := readImportFile(path)
				if err != nil {
					return err
				}
				f.Platform = platform
				files = append(files, f)
			}

			store, err := authorflow.NewStore(cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			log := authorflow.NewLogger(cfg.LogLevel)
			loc, err := cfg.Import.Location()
			if err != nil {
				return err
			}
			im := authorflow.NewImporter(store, nil, nil, log, reconcile.DateParser{
				ReferenceYear: cfg.Import.AnalysisYear,
				Location:      loc,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			report, err := im.Run(ctx, owner, strat, files)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner whose posts are updated (default from config)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "update_only or create_new (default from config)")
	cmd.Flags().StringVar(&platform, "platform", "", "platform of every file, overriding the file name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func readImportFile(path string) (authorflow.ImportFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return authorflow.ImportFile{}, err
	}
	defer f.Close()
	rows, err := authorflow.ReadRows(f)
	if err != nil {
		return authorflow.ImportFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return authorflow.ImportFile{Name: filepath.Base(path), Rows: rows}, nil
}

func printReport(w io.Writer, report authorflow.ImportReport) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	for _, f := range report.Files {
		if f.Unsupported {
			fmt.Fprintf(w, "%s %s: platform not supported, %d rows ignored\n", yellow("!"), f.File, f.Rows)
			continue
		}
		fmt.Fprintf(w, "%s %s (%s): %d rows, %s updated, %s created, %d skipped\n",
			cyan("•"), f.File, f.Platform, f.Rows, green(f.Updated), green(f.Created), len(f.Skipped))
		for _, s := range f.Skipped {
			fmt.Fprintf(w, "    row %d: %s %s\n", s.Index+1, s.Reason, s.Value)
		}
		for _, fail := range f.Failed {
			fmt.Fprintf(w, "    %s row %d: %v\n", red("✗"), fail.RowIndex+1, fail.Err)
		}
	}
	fmt.Fprintf(w, "\nTotal: %d rows, %s updated, %s created\n", report.Rows, green(report.Updated), green(report.Created))
	if report.NothingApplied {
		fmt.Fprintln(w, yellow("No post was updated: check that the calendar has posts on the exported dates."))
	}
}
