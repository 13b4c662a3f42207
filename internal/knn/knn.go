// Package knn implements a K-nearest-neighbor classifier over tensors.
//
// Examples are flattened and L2-normalized, then stacked into one matrix
// per label. Prediction computes cosine similarities against every stored
// example with a single matrix product and lets the k most similar
// examples vote.
package knn

import (
	"context"
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/internal/tensor"
)

// ErrNoExamples is returned by PredictClass before any example was added.
var ErrNoExamples = errors.New("you have not added any examples to the KNN classifier; add examples before calling PredictClass")

// Prediction is the result of PredictClass.
type Prediction struct {
	Label       string
	ClassIndex  int
	Confidences map[string]float64
}

// ClassDataset is the stored example matrix of one label, shaped
// [examples, exampleSize].
type ClassDataset struct {
	Label  string
	Matrix *tensor.Tensor
}

// Classifier is a KNN classifier. It is not safe for concurrent use.
type Classifier struct {
	classDatasetMatrices *orderedmap.OrderedMap[string, *tensor.Tensor]
	classExampleCount    map[string]int
	exampleShape         tensor.Shape
	labelToClassID       map[string]int
	nextClassID          int
	trainDatasetMatrix   *tensor.Tensor
}

// New creates an empty classifier.
func New() *Classifier {
	return &Classifier{
		classDatasetMatrices: orderedmap.New[string, *tensor.Tensor](),
		classExampleCount:    make(map[string]int),
		labelToClassID:       make(map[string]int),
	}
}

// AddExample stores example under label. Every example must have the shape
// of the first one.
func (c *Classifier) AddExample(example *tensor.Tensor, label string) error {
	if example == nil {
		return errors.New("example must be a tensor")
	}
	if c.exampleShape == nil {
		c.exampleShape = example.Shape().Clone()
	}
	if !c.exampleShape.Equal(example.Shape()) {
		return fmt.Errorf("example shape provided, %v does not match previously provided example shapes %v",
			[]int(example.Shape()), []int(c.exampleShape))
	}

	c.clearTrainDatasetMatrix()
	if _, ok := c.labelToClassID[label]; !ok {
		c.labelToClassID[label] = c.nextClassID
		c.nextClassID++
	}

	e := engine.Get()
	engine.Tidy(e, "knn.addExample", func() *tensor.Tensor {
		normalized := normalizeVectorToUnitLength(ops.Reshape(example, []int{example.Size()}))
		size := normalized.Shape()[0]
		row := ops.Reshape(normalized, []int{1, size})

		matrix := row
		if prev, ok := c.classDatasetMatrices.Get(label); ok {
			matrix = ops.Concat([]*tensor.Tensor{prev, row}, 0)
			prev.Dispose()
		}
		c.classDatasetMatrices.Set(label, e.Keep(matrix))
		return nil
	})
	c.classExampleCount[label]++
	return nil
}

func normalizeVectorToUnitLength(v *tensor.Tensor) *tensor.Tensor {
	return ops.Div(v, ops.Norm(v, nil, false))
}

// similarities returns the cosine similarity of input with every stored
// example, in label order.
func (c *Classifier) similarities(input *tensor.Tensor) *tensor.Tensor {
	e := engine.Get()
	return engine.Tidy(e, "knn.similarities", func() *tensor.Tensor {
		normalized := normalizeVectorToUnitLength(ops.Reshape(input, []int{input.Size()}))
		size := normalized.Shape()[0]

		if c.trainDatasetMatrix == nil {
			var matrices []*tensor.Tensor
			for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
				matrices = append(matrices, pair.Value)
			}
			if len(matrices) == 0 {
				return nil
			}
			c.trainDatasetMatrix = e.Keep(ops.Concat(matrices, 0))
		}

		numExamples := c.numExamples()
		sims := ops.MatMul(
			ops.Reshape(c.trainDatasetMatrix, []int{numExamples, size}),
			ops.Reshape(normalized, []int{size, 1}),
			false, false,
		)
		return ops.Reshape(sims, []int{numExamples})
	})
}

// PredictClass classifies input by a vote of its k nearest examples.
// Confidences are the fraction of the k votes each label received; the
// label with the highest confidence wins and the earlier label wins ties.
func (c *Classifier) PredictClass(ctx context.Context, input *tensor.Tensor, k int) (Prediction, error) {
	if k < 1 {
		return Prediction{}, errors.New("provide a positive integer k value to PredictClass")
	}
	if c.NumClasses() == 0 {
		return Prediction{}, ErrNoExamples
	}
	if input == nil {
		return Prediction{}, errors.New("input must be a tensor")
	}
	if c.exampleShape != nil && input.Size() != c.exampleShape.NumElements() {
		return Prediction{}, fmt.Errorf("input of size %d does not match the example size %d",
			input.Size(), c.exampleShape.NumElements())
	}

	kVal := min(k, c.numExamples())
	e := engine.Get()
	indicesTensor := engine.Tidy(e, "knn.predictClass", func() *tensor.Tensor {
		sims := c.similarities(input)
		if sims == nil {
			return nil
		}
		_, indices := ops.TopK(ops.Cast(sims, tensor.Float32), kVal)
		return indices
	})
	if indicesTensor == nil {
		return Prediction{}, ErrNoExamples
	}
	defer indicesTensor.Dispose()

	vals, err := indicesTensor.Data(ctx)
	if err != nil {
		return Prediction{}, fmt.Errorf("read top-k indices: %w", err)
	}
	indices, _ := tensor.ConvertValues(vals, tensor.Int32).([]int32)
	return c.calculateTopClass(indices, kVal), nil
}

func (c *Classifier) calculateTopClass(topKIndices []int32, kVal int) Prediction {
	// Examples of each label occupy a contiguous block of rows in the
	// train matrix; classEnds holds the exclusive end row of each block.
	var labels []string
	var classEnds []int
	end := 0
	for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
		labels = append(labels, pair.Key)
		end += c.classExampleCount[pair.Key]
		classEnds = append(classEnds, end)
	}

	votes := make([]int, len(labels))
	for _, idx := range topKIndices {
		for class, classEnd := range classEnds {
			if int(idx) < classEnd {
				votes[class]++
				break
			}
		}
	}

	pred := Prediction{ClassIndex: -1, Confidences: make(map[string]float64, len(labels))}
	topConfidence := 0.0
	for i, label := range labels {
		p := float64(votes[i]) / float64(kVal)
		if p > topConfidence {
			topConfidence = p
			pred.Label = label
			pred.ClassIndex = c.labelToClassID[label]
		}
		pred.Confidences[label] = p
	}
	return pred
}

func (c *Classifier) clearTrainDatasetMatrix() {
	if c.trainDatasetMatrix != nil {
		c.trainDatasetMatrix.Dispose()
		c.trainDatasetMatrix = nil
	}
}

// ClearClass removes every example of label.
func (c *Classifier) ClearClass(label string) error {
	m, ok := c.classDatasetMatrices.Get(label)
	if !ok {
		return fmt.Errorf("cannot clear invalid class %s", label)
	}
	m.Dispose()
	c.classDatasetMatrices.Delete(label)
	delete(c.classExampleCount, label)
	c.clearTrainDatasetMatrix()
	return nil
}

// ClearAllClasses removes every example.
func (c *Classifier) ClearAllClasses() {
	for _, label := range c.Labels() {
		_ = c.ClearClass(label)
	}
}

// Labels returns the labels with examples in insertion order.
func (c *Classifier) Labels() []string {
	labels := make([]string, 0, c.classDatasetMatrices.Len())
	for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
		labels = append(labels, pair.Key)
	}
	return labels
}

// ClassExampleCount returns the number of examples per label.
func (c *Classifier) ClassExampleCount() map[string]int {
	counts := make(map[string]int, len(c.classExampleCount))
	for label, n := range c.classExampleCount {
		counts[label] = n
	}
	return counts
}

// ClassifierDataset returns the stored matrices in label order. The
// tensors stay owned by the classifier.
func (c *Classifier) ClassifierDataset() []ClassDataset {
	out := make([]ClassDataset, 0, c.classDatasetMatrices.Len())
	for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, ClassDataset{Label: pair.Key, Matrix: pair.Value})
	}
	return out
}

// SetClassifierDataset replaces the stored examples. Matrices must be 2D
// with the same number of columns; the classifier takes ownership of them.
// Rows are used as given and are not normalized again.
func (c *Classifier) SetClassifierDataset(dataset []ClassDataset) error {
	cols := -1
	seen := make(map[string]bool, len(dataset))
	for _, d := range dataset {
		if d.Matrix == nil || d.Matrix.Rank() != 2 {
			return fmt.Errorf("dataset for class %s must be a 2D tensor", d.Label)
		}
		if seen[d.Label] {
			return fmt.Errorf("duplicate class %s in dataset", d.Label)
		}
		seen[d.Label] = true
		if cols == -1 {
			cols = d.Matrix.Shape()[1]
		} else if d.Matrix.Shape()[1] != cols {
			return fmt.Errorf("dataset for class %s has %d columns, expected %d", d.Label, d.Matrix.Shape()[1], cols)
		}
	}

	c.clearTrainDatasetMatrix()
	incoming := make(map[*tensor.Tensor]bool, len(dataset))
	for _, d := range dataset {
		incoming[d.Matrix] = true
	}
	for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
		if !incoming[pair.Value] {
			pair.Value.Dispose()
		}
	}

	e := engine.Get()
	c.classDatasetMatrices = orderedmap.New[string, *tensor.Tensor]()
	c.classExampleCount = make(map[string]int, len(dataset))
	for _, d := range dataset {
		c.classDatasetMatrices.Set(d.Label, e.Keep(d.Matrix))
		c.classExampleCount[d.Label] = d.Matrix.Shape()[0]
		if _, ok := c.labelToClassID[d.Label]; !ok {
			c.labelToClassID[d.Label] = c.nextClassID
			c.nextClassID++
		}
	}
	if cols >= 0 && (c.exampleShape == nil || c.exampleShape.NumElements() != cols) {
		c.exampleShape = tensor.Shape{cols}
	}
	return nil
}

// NumClasses returns the number of labels with examples.
func (c *Classifier) NumClasses() int {
	return len(c.classExampleCount)
}

func (c *Classifier) numExamples() int {
	total := 0
	for _, n := range c.classExampleCount {
		total += n
	}
	return total
}

// Dispose releases every stored tensor.
func (c *Classifier) Dispose() {
	c.clearTrainDatasetMatrix()
	for pair := c.classDatasetMatrices.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Dispose()
	}
	c.classDatasetMatrices = orderedmap.New[string, *tensor.Tensor]()
	c.classExampleCount = make(map[string]int)
}
