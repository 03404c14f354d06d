// Command loom inspects and converts ONNX models.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "loom",
		Short:        "Import ONNX models into the loom IR",
		Version:      version,
		SilenceUsage: true,
	}

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	logger := func() *zap.Logger {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg = zap.NewDevelopmentConfig()
		}
		log, err := cfg.Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		return log
	}

	root.AddCommand(
		newInspectCommand(),
		newConvertCommand(logger),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
