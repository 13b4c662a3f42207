package knn

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/internal/serialization"
	"github.com/born-ml/tfcore/internal/tensor"
)

const (
	formatKey       = "format"
	formatVersion   = "tfcore.knn.v1"
	labelsKey       = "labels"
	exampleShapeKey = "example_shape"
)

func classRecordName(i int) string {
	return "class." + strconv.Itoa(i)
}

// Save writes the stored examples to w in SafeTensors format. Each label's
// matrix is stored as a float32 tensor; labels and the example shape travel
// in the metadata.
func (c *Classifier) Save(w io.Writer) error {
	labels := c.Labels()
	records := make([]serialization.Record, 0, len(labels))
	for i, d := range c.ClassifierDataset() {
		records = append(records, serialization.Record{
			Name:   classRecordName(i),
			DType:  tensor.Float32,
			Shape:  d.Matrix.Shape().Clone(),
			Values: d.Matrix.Float32s(),
		})
	}

	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	shape := []int{}
	if c.exampleShape != nil {
		shape = []int(c.exampleShape)
	}
	shapeJSON, err := json.Marshal(shape)
	if err != nil {
		return fmt.Errorf("encode example shape: %w", err)
	}

	return serialization.Write(w, records, map[string]string{
		formatKey:       formatVersion,
		labelsKey:       string(labelsJSON),
		exampleShapeKey: string(shapeJSON),
	})
}

// Load reads a classifier written by Save.
func Load(r io.Reader) (*Classifier, error) {
	records, meta, err := serialization.Read(r)
	if err != nil {
		return nil, err
	}
	if meta[formatKey] != formatVersion {
		return nil, fmt.Errorf("unsupported classifier format %q", meta[formatKey])
	}
	var labels []string
	if err := json.Unmarshal([]byte(meta[labelsKey]), &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	var shape []int
	if err := json.Unmarshal([]byte(meta[exampleShapeKey]), &shape); err != nil {
		return nil, fmt.Errorf("decode example shape: %w", err)
	}
	if len(records) != len(labels) {
		return nil, fmt.Errorf("file has %d class tensors for %d labels", len(records), len(labels))
	}

	byName := make(map[string]serialization.Record, len(records))
	for _, rec := range records {
		byName[rec.Name] = rec
	}

	e := engine.Get()
	dataset := make([]ClassDataset, 0, len(labels))
	release := func() {
		for _, d := range dataset {
			d.Matrix.Dispose()
		}
	}
	for i, label := range labels {
		rec, ok := byName[classRecordName(i)]
		if !ok {
			release()
			return nil, fmt.Errorf("missing tensor %s for class %s", classRecordName(i), label)
		}
		m, err := ops.TensorOfType(rec.Values, rec.Shape, tensor.Float32)
		if err != nil {
			release()
			return nil, fmt.Errorf("class %s: %w", label, err)
		}
		dataset = append(dataset, ClassDataset{Label: label, Matrix: e.Keep(m)})
	}

	c := New()
	if err := c.SetClassifierDataset(dataset); err != nil {
		release()
		return nil, err
	}
	if len(shape) > 0 {
		s := tensor.Shape(shape)
		if len(dataset) > 0 && s.NumElements() != dataset[0].Matrix.Shape()[1] {
			c.Dispose()
			return nil, fmt.Errorf("example shape %v does not match stored examples of size %d", shape, dataset[0].Matrix.Shape()[1])
		}
		c.exampleShape = s
	}
	return c, nil
}
