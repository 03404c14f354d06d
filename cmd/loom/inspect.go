package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loom-ml/loom/onnx"
)

func newInspectCommand() *cobra.Command {
	var opsOnly bool

	cmd := &cobra.Command{
		Use:   "inspect <model.onnx>",
		Short: "Print model metadata without converting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := onnx.GetModelInfo(args[0])
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}

			ops := make([]string, 0, len(info.OpCounts))
			for op := range info.OpCounts {
				ops = append(ops, op)
			}
			sort.Strings(ops)

			if opsOnly {
				for _, op := range ops {
					fmt.Println(op)
				}
				return nil
			}

			header := color.New(color.FgCyan, color.Bold)
			header.Println(args[0])
			fmt.Printf("  IR version:   %d\n", info.IRVersion)
			fmt.Printf("  opset:        %d\n", info.OpsetVersion)
			if info.ProducerName != "" {
				fmt.Printf("  producer:     %s %s\n", info.ProducerName, info.ProducerVersion)
			}
			fmt.Printf("  nodes:        %d\n", info.NodeCount)
			fmt.Printf("  initializers: %d\n", info.InitializerCount)

			header.Println("inputs")
			for _, in := range info.Inputs {
				fmt.Printf("  %-24s %s%s\n", in.Name, in.DType, in.Shape)
			}
			header.Println("outputs")
			for _, out := range info.Outputs {
				fmt.Printf("  %-24s %s%s\n", out.Name, out.DType, out.Shape)
			}

			header.Println("operators")
			for _, op := range ops {
				fmt.Printf("  %-24s %d\n", op, info.OpCounts[op])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opsOnly, "ops", false, "list only the distinct operators the model uses")
	return cmd
}
