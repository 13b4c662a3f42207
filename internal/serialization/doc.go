// Package serialization reads and writes engine tensors in the SafeTensors
// format:
//
//	[8 bytes: header size (uint64 LE)]
//	[header: JSON object, one entry per tensor plus optional "__metadata__"]
//	[tensor data: little-endian raw bytes]
//
// Writers emit F32, I32 and BOOL; readers also accept F16 and BF16, which
// load as float32. Writers record the SHA-256 of the data section in the
// metadata under "sha256" and readers verify it when present.
//
// Example usage:
//
//	err := serialization.Write(w, []serialization.Record{
//	    {Name: "weights", DType: tensor.Float32, Shape: tensor.Shape{2, 2}, Values: vals},
//	}, map[string]string{"format": "example"})
//
//	records, metadata, err := serialization.Read(r)
package serialization
