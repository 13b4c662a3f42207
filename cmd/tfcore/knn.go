package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/tfcore/knn"
	"github.com/born-ml/tfcore/tensor"
)

func newKNNCmd() *cobra.Command {
	knnCmd := &cobra.Command{
		Use:   "knn DATA",
		Short: "Classify query vectors against labelled examples",
		Long: `Classify query vectors against labelled examples.

DATA is either a classifier saved with --save (*.safetensors) or a CSV
file where every row is a label followed by the example's values:

  cat,0.9,0.1,0.3
  dog,0.2,0.8,0.4`,
		Args: cobra.ExactArgs(1),
		RunE: KNNHandler,
	}
	knnCmd.Flags().StringArrayP("query", "q", nil, "Comma separated query vector (repeatable)")
	knnCmd.Flags().Int("k", 3, "Number of neighbors that vote")
	knnCmd.Flags().Bool("header", false, "Skip the first row of a CSV file")
	knnCmd.Flags().String("save", "", "Write the loaded examples to a .safetensors file")
	return knnCmd
}

type labelledExample struct {
	label  string
	values []float32
}

// KNNHandler loads the examples, classifies every query and prints one row
// per query.
func KNNHandler(cmd *cobra.Command, args []string) error {
	queries, err := cmd.Flags().GetStringArray("query")
	if err != nil {
		return err
	}
	k, err := cmd.Flags().GetInt("k")
	if err != nil {
		return err
	}
	header, err := cmd.Flags().GetBool("header")
	if err != nil {
		return err
	}
	savePath, err := cmd.Flags().GetString("save")
	if err != nil {
		return err
	}
	if len(queries) == 0 && savePath == "" {
		return errors.New("nothing to do: pass --query or --save")
	}

	c, err := loadClassifier(args[0], header)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	defer c.Dispose()

	if savePath != "" {
		if err := saveClassifier(c, savePath); err != nil {
			return err
		}
		cmd.Printf("Saved %d classes to %s\n", c.NumClasses(), savePath)
	}
	if len(queries) == 0 {
		return nil
	}

	labels := c.Labels()
	var rows [][]string
	for _, q := range queries {
		vals, err := parseVector(strings.Split(q, ","))
		if err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
		x, err := tensor.Of(vals, nil)
		if err != nil {
			return err
		}
		pred, err := c.PredictClass(cmd.Context(), x, k)
		x.Dispose()
		if err != nil {
			return err
		}

		row := []string{q, pred.Label}
		for _, l := range labels {
			row = append(row, strconv.FormatFloat(pred.Confidences[l], 'f', 3, 64))
		}
		rows = append(rows, row)
	}

	renderTable(cmd.OutOrStdout(), append([]string{"QUERY", "LABEL"}, labels...), rows)
	return nil
}

func loadClassifier(path string, header bool) (*knn.Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(path, ".safetensors") {
		return knn.Load(bufio.NewReader(f))
	}

	examples, err := readExamples(f, header)
	if err != nil {
		return nil, err
	}
	c := knn.New()
	for _, ex := range examples {
		x, err := tensor.Of(ex.values, nil)
		if err != nil {
			c.Dispose()
			return nil, err
		}
		err = c.AddExample(x, ex.label)
		x.Dispose()
		if err != nil {
			c.Dispose()
			return nil, err
		}
	}
	return c, nil
}

func saveClassifier(c *knn.Classifier, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := c.Save(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readExamples(r io.Reader, header bool) ([]labelledExample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var examples []labelledExample
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if header && line == 1 {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: want a label and at least one value", line)
		}
		vals, err := parseVector(record[1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		examples = append(examples, labelledExample{label: record[0], values: vals})
	}
	if len(examples) == 0 {
		return nil, errors.New("no examples")
	}
	return examples, nil
}

func parseVector(fields []string) ([]float32, error) {
	vals := make([]float32, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, err
		}
		vals[i] = float32(v)
	}
	return vals, nil
}
