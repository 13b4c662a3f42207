// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package knn provides a K-nearest-neighbor classifier that compares
// examples by cosine similarity.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tfcore/knn"
//	    "github.com/born-ml/tfcore/tensor"
//	)
//
//	func main() {
//	    c := knn.New()
//	    defer c.Dispose()
//
//	    c.AddExample(tensor.MustOf([]float32{1, 0}, nil), "east")
//	    c.AddExample(tensor.MustOf([]float32{0, 1}, nil), "north")
//
//	    pred, err := c.PredictClass(ctx, tensor.MustOf([]float32{0.9, 0.2}, nil), 1)
//	    fmt.Println(pred.Label) // east
//	}
package knn

import (
	"io"

	// Registers the CPU backend so every program has one.
	_ "github.com/born-ml/tfcore/internal/backend/cpu"
	"github.com/born-ml/tfcore/internal/knn"
)

// Classifier is a KNN classifier. It is not safe for concurrent use.
type Classifier = knn.Classifier

// Prediction is the label, class index and per-label confidence returned
// by PredictClass.
type Prediction = knn.Prediction

// ClassDataset is the example matrix stored for one label.
type ClassDataset = knn.ClassDataset

// ErrNoExamples is returned by PredictClass before any example was added.
var ErrNoExamples = knn.ErrNoExamples

// New creates an empty classifier.
func New() *Classifier {
	return knn.New()
}

// Load reads a classifier previously written with Classifier.Save.
func Load(r io.Reader) (*Classifier, error) {
	return knn.Load(r)
}
