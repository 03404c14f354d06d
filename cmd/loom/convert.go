package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loom-ml/loom/ir"
	"github.com/loom-ml/loom/onnx"
)

func newConvertCommand(logger func() *zap.Logger) *cobra.Command {
	var (
		externalDataDir string
		skipChecksums   bool
		decodeOnly      bool
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "convert <model.onnx>",
		Short: "Convert a model and print the resulting function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger()
			defer log.Sync() //nolint:errcheck // flushing stderr on exit

			opts := []onnx.Option{onnx.WithLogger(log)}
			if externalDataDir != "" {
				opts = append(opts, onnx.WithExternalDataDir(externalDataDir))
			}
			if skipChecksums {
				opts = append(opts, onnx.WithoutChecksumVerification())
			}

			model, err := onnx.Load(args[0], opts...)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}

			var fn *ir.Function
			if decodeOnly {
				fn, err = model.Decode()
			} else {
				fn, err = model.Convert()
			}
			if err != nil {
				var unsupported *onnx.UnsupportedOperatorError
				if errors.As(err, &unsupported) {
					color.Red("unsupported operators:")
					for _, op := range unsupported.Operators {
						fmt.Printf("  %s\n", op)
					}
				}
				return fmt.Errorf("convert %s: %w", args[0], err)
			}

			if asJSON {
				return printFunctionJSON(fn)
			}
			printFunction(fn)
			return nil
		},
	}

	cmd.Flags().StringVar(&externalDataDir, "external-data", "", "directory for externally stored tensors (default: model directory)")
	cmd.Flags().BoolVar(&skipChecksums, "skip-checksums", false, "skip checksum verification of external tensors")
	cmd.Flags().BoolVar(&decodeOnly, "decode", false, "decode to framework nodes instead of converting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit a JSON summary")
	return cmd
}

func printFunction(fn *ir.Function) {
	header := color.New(color.FgCyan, color.Bold)

	header.Printf("function %s\n", fn.Name())
	header.Println("parameters")
	for _, p := range fn.Parameters() {
		out := p.Output(0)
		fmt.Printf("  %-24s %s%s\n", p.Name(), out.DType(), out.Shape())
	}

	header.Println("results")
	for i, r := range fn.Results() {
		fmt.Printf("  %-24s %s%s  <- %s\n", fn.ResultName(i), r.DType(), r.Shape(), describeProducer(r))
	}

	header.Println("nodes")
	for _, n := range fn.Nodes() {
		if n.Kind() == ir.KindOp || n.Kind() == ir.KindFramework {
			fmt.Printf("  %-24s %s\n", n.Name(), n.OpType())
		}
	}

	counts := countKinds(fn)
	fmt.Printf("  ops %d, constants %d, parameters %d, framework %d\n",
		counts[ir.KindOp], counts[ir.KindConstant], counts[ir.KindParameter], counts[ir.KindFramework])
}

type valueSummary struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape string `json:"shape"`
}

type functionSummary struct {
	Name       string         `json:"name"`
	Parameters []valueSummary `json:"parameters"`
	Results    []valueSummary `json:"results"`
	Ops        int            `json:"ops"`
	Constants  int            `json:"constants"`
	Framework  int            `json:"framework"`
}

func printFunctionJSON(fn *ir.Function) error {
	counts := countKinds(fn)
	summary := functionSummary{
		Name:      fn.Name(),
		Ops:       counts[ir.KindOp],
		Constants: counts[ir.KindConstant],
		Framework: counts[ir.KindFramework],
	}
	for _, p := range fn.Parameters() {
		out := p.Output(0)
		summary.Parameters = append(summary.Parameters, valueSummary{
			Name:  p.Name(),
			DType: out.DType().String(),
			Shape: out.Shape().String(),
		})
	}
	for i, r := range fn.Results() {
		summary.Results = append(summary.Results, valueSummary{
			Name:  fn.ResultName(i),
			DType: r.DType().String(),
			Shape: r.Shape().String(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func countKinds(fn *ir.Function) map[ir.Kind]int {
	counts := map[ir.Kind]int{}
	for _, n := range fn.Nodes() {
		counts[n.Kind()]++
	}
	return counts
}

func describeProducer(v *ir.Value) string {
	n := v.Node()
	if n == nil {
		return "(absent)"
	}
	if n.OpType() != "" {
		return fmt.Sprintf("%s %q", n.OpType(), n.Name())
	}
	return fmt.Sprintf("%q", n.Name())
}
