package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/authorflow/authorflow"
)

// version is set at build time via ldflags.
var version = "dev"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "authorflow",
		Short:        "Content calendar server and analytics importer for authors",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			authorflow.LoadEnvFiles(logrus.StandardLogger())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AUTHORFLOW_CONFIG"), "path to YAML config file")

	root.AddCommand(newServeCmd(), newImportCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := authorflow.LoadConfig(configPath)
			if err != nil {
				return err
			}
			app := authorflow.New(cfg, authorflow.ViewFuncs{})
			defer app.Close()
			return app.Start()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the authorflow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "authorflow %s\n", version)
		},
	}
}
