package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/tfcore/engine"
	"github.com/born-ml/tfcore/tensor"
)

func newProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile a batched matrix multiplication",
		Args:  cobra.NoArgs,
		RunE:  ProfileHandler,
	}
	profileCmd.Flags().Int("size", 256, "Rows and columns of each matrix")
	profileCmd.Flags().Int("batch", 1, "Number of matrices per operand")
	return profileCmd
}

// ProfileHandler multiplies two [batch, size, size] tensors and prints the
// kernel profile.
func ProfileHandler(cmd *cobra.Command, _ []string) error {
	size, err := cmd.Flags().GetInt("size")
	if err != nil {
		return err
	}
	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}
	if size < 1 || batch < 1 {
		return fmt.Errorf("size and batch must be positive, got %d and %d", size, batch)
	}
	if err := engine.Ready(cmd.Context()); err != nil {
		return err
	}

	shape := tensor.Shape{batch, size, size}
	a := tensor.Fill(shape, 0.5, tensor.Float32)
	b := tensor.Ones(shape)
	defer a.Dispose()
	defer b.Dispose()

	info, err := engine.Profile(func() any {
		return tensor.Tidy("profile", func() *tensor.Tensor {
			return tensor.Sum(tensor.MatMul(a, b, false, true), nil, false)
		})
	})
	if err != nil {
		return err
	}
	if res, ok := info.Result.(*tensor.Tensor); ok {
		defer res.Dispose()
	}

	var rows [][]string
	for _, k := range info.Kernels {
		shapes := make([]string, len(k.OutputShapes))
		for i, s := range k.OutputShapes {
			shapes[i] = fmt.Sprint([]int(s))
		}
		rows = append(rows, []string{
			k.Name,
			fmt.Sprintf("%.3f", k.KernelTimeMs),
			fmt.Sprint(k.BytesAdded),
			fmt.Sprint(k.TensorsAdded),
			strings.Join(shapes, " "),
		})
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Backend: %s\n\n", engine.BackendName())
	renderTable(w, []string{"KERNEL", "TIME MS", "BYTES", "TENSORS", "OUTPUT"}, rows)
	fmt.Fprintf(w, "\nPeak bytes: %d\nNew bytes: %d\nNew tensors: %d\n", info.PeakBytes, info.NewBytes, info.NewTensors)
	return nil
}
