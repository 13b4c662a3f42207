// Command tfcore inspects the tensor engine and runs a KNN classifier over
// CSV data or a saved classifier.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/tfcore/engine"
)

const version = "v0.1.0-dev"

func main() {
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tfcore",
		Short:         "Tensor engine and KNN classifier",
		SilenceUsage:  true,
		SilenceErrors: false,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			if path, _ := cmd.Flags().GetString("flags"); path != "" {
				if err := applyFlagsFile(path); err != nil {
					return err
				}
			}
			if verbose {
				return engine.SetFlag(engine.FlagDebug, true)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log kernel profiles and engine warnings")
	rootCmd.PersistentFlags().String("flags", "", "YAML file of engine flags to set")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInfoCmd(),
		newProfileCmd(),
		newKNNCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("tfcore %s\n", version)
		},
	}
}
