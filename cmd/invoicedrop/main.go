package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	apiURL      string
	composeFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "invoicedrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoicedrop",
		Short: "InvoiceDrop operator CLI",
		Long: `invoicedrop uploads invoice batches to a running InvoiceDrop API, drives them through
parsing, splitting and materialization, and manages the local docker-compose stack.`,
		SilenceUsage: true,
	}
	defaultAPI := os.Getenv("INVOICEDROP_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "Base URL of the InvoiceDrop API")
	cmd.AddCommand(
		newIngestCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newProcessCmd(),
		newCancelCmd(),
		newRemoveCmd(),
		newThumbnailsCmd(),
		newSplitCmd(),
		newMaterializeCmd(),
		newLinkCmd(),
		newStackCmd(),
	)
	return cmd
}

func newStackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage the docker-compose stack (postgres, redis, minio, api, worker)",
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use")

	var detach, skipBuild, removeVolumes, follow bool
	up := &cobra.Command{
		Use:   "up [service...]",
		Short: "Start the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "up"}
			if !skipBuild {
				composeArgs = append(composeArgs, "--build")
			}
			if detach {
				composeArgs = append(composeArgs, "-d")
			}
			return runCommand(cmd.Context(), "docker", append(composeArgs, args...)...)
		},
	}
	up.Flags().BoolVarP(&detach, "detached", "d", true, "Run docker compose in detached mode")
	up.Flags().BoolVar(&skipBuild, "skip-build", false, "Skip rebuilding images before starting")

	down := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	down.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")

	logs := &cobra.Command{
		Use:   "logs [service...]",
		Short: "Tail service logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "logs"}
			if follow {
				composeArgs = append(composeArgs, "-f")
			}
			return runCommand(cmd.Context(), "docker", append(composeArgs, args...)...)
		},
	}
	logs.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")

	cmd.AddCommand(up, down, logs)
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
