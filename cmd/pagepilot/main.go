package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagepilot/internal/bootstrap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagepilot",
		Short:         "Scripted browser automation, element mapping and data extraction.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd(), newConsoleCmd(), newRunCmd())

	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, artifacts and metrics",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			bootstrap.NewServerApp().Run()
		},
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive prompt",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			bootstrap.NewConsoleApp().Run()
		},
	}
}

func newRunCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one run, map or extract script and print the result",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if file == "" {
				return errors.New("--file is required")
			}

			bootstrap.NewRunApp(file).Run()

			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "script file (.json, .yaml or .yml)")

	return cmd
}
