package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := buildRoot()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createReplayCommand(globalFlags),
		createCheckConfigCommand(globalFlags),
		createStatusCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "drowsyd",
		Short: "PERCLOS drowsiness detection daemon",
		Long: `drowsyd classifies operator drowsiness from per-frame eye-openness
probabilities, either live over HTTP or offline from a recorded frame file.

Examples:
  drowsyd serve --config=drowsy.toml
  drowsyd replay --input=frames.jsonl
  drowsyd status --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one detection session behind the HTTP API",
		Long: `Start the HTTP API for a single detection session. Frames are posted to
{base_path}/frames and events are streamed on {base_path}/events.

Examples:
  drowsyd serve
  drowsyd serve --config=drowsy.toml --listen=127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(cmd.Context(), *serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (overrides config)")
	return cmd
}

// createReplayCommand creates the replay subcommand
func createReplayCommand(globalFlags *GlobalFlags) *cobra.Command {
	replayFlags := &ReplayFlags{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Classify a recorded frame file",
		Long: `Run a JSON-lines frame recording through a fresh session. The session clock
follows the frame timestamps, so results match a live run at recording speed.
Classification events are printed as JSON lines on stdout.

Frame format:
  {"timestamp_ms": 0, "left_eye_open_probability": 0.9,
   "right_eye_open_probability": 0.8, "landmarks": ["left_eye", "right_eye"]}

Examples:
  drowsyd replay --input=frames.jsonl
  cat frames.jsonl | drowsyd replay --input=- --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			replayFlags.ConfigPath = globalFlags.ConfigPath
			return runReplay(*replayFlags, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&replayFlags.Input, "input", "", "JSONL frame file, - for stdin (required)")
	cmd.Flags().BoolVar(&replayFlags.All, "all", false, "print every event instead of classifications only")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		panic(err)
	}
	return cmd
}

// createCheckConfigCommand creates the check-config subcommand
func createCheckConfigCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate a config file and print the effective settings",
		Long: `Load the config file, apply env_files and DROWSY_* overrides, validate it
and print the effective configuration.

Examples:
  drowsyd check-config --config=drowsy.toml
  DROWSY_DETECTOR_TIME_WINDOW=30s drowsyd check-config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(CheckConfigFlags{ConfigPath: globalFlags.ConfigPath}, cmd.OutOrStdout())
		},
	}
}

// createStatusCommand creates the status subcommand
func createStatusCommand() *cobra.Command {
	statusFlags := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Long: `Query a running drowsyd for its session snapshot.

Examples:
  drowsyd status
  drowsyd status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), *statusFlags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}
