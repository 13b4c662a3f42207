package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/tfcore/internal/tensor"
)

const metadataKey = "__metadata__"

// Record is one named tensor as stored in a file.
type Record struct {
	Name   string
	DType  tensor.DataType
	Shape  tensor.Shape
	Values tensor.Values
}

// safeTensorHeader represents a tensor in the SafeTensors header.
type safeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Int32:
		return "I32", nil
	case tensor.Bool:
		return "BOOL", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

// storedDType is the on-disk layout of a SafeTensors dtype and the tensor
// dtype it loads as. Half-precision floats are widened to float32.
type storedDType struct {
	dtype tensor.DataType
	size  int
}

var readableDTypes = map[string]storedDType{
	"F32":  {tensor.Float32, 4},
	"F16":  {tensor.Float32, 2},
	"BF16": {tensor.Float32, 2},
	"I32":  {tensor.Int32, 4},
	"BOOL": {tensor.Bool, 1},
}

// Write encodes records to w. Tensors are laid out in name order and the
// data checksum is added to metadata.
func Write(w io.Writer, records []Record, metadata map[string]string) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	var data bytes.Buffer
	for _, rec := range sorted {
		if err := ValidateTensorName(rec.Name); err != nil {
			return err
		}
		if _, dup := header[rec.Name]; dup {
			return &ValidationError{Type: "duplicate_name", Tensor: rec.Name, Details: "tensor names must be unique"}
		}
		dtype, err := dtypeToSafeTensors(rec.DType)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", rec.Name, err)
		}
		if n := tensor.ValuesLen(rec.Values); n != rec.Shape.NumElements() {
			return fmt.Errorf("tensor %s: shape %v needs %d values, got %d", rec.Name, []int(rec.Shape), rec.Shape.NumElements(), n)
		}

		start := int64(data.Len())
		encodeValues(&data, tensor.ConvertValues(rec.Values, rec.DType))
		shape := make([]int64, len(rec.Shape))
		for i, d := range rec.Shape {
			shape[i] = int64(d)
		}
		header[rec.Name] = safeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[ChecksumKey] = ComputeChecksum(data.Bytes())
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

func encodeValues(buf *bytes.Buffer, values tensor.Values) {
	var scratch [4]byte
	switch vals := values.(type) {
	case []float32:
		for _, v := range vals {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			buf.Write(scratch[:])
		}
	case []int32:
		for _, v := range vals {
			binary.LittleEndian.PutUint32(scratch[:], uint32(v))
			buf.Write(scratch[:])
		}
	case []bool:
		for _, v := range vals {
			if v {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		}
	}
}

// Read decodes every tensor in r. Records are returned in name order. F16
// and BF16 tensors are read as float32.
func Read(r io.Reader) ([]Record, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var metadata map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if sum, ok := metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, nil, err
		}
	}

	headers := make(map[string]safeTensorHeader, len(raw))
	metas := make([]TensorMeta, 0, len(raw))
	for name, msg := range raw {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h safeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("failed to parse header of %s: %w", name, err)
		}
		headers[name] = h
		metas = append(metas, TensorMeta{Name: name, Offset: h.DataOffsets[0], Size: h.DataOffsets[1] - h.DataOffsets[0]})
	}
	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	records := make([]Record, 0, len(names))
	for _, name := range names {
		rec, err := decodeRecord(name, headers[name], data)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
	}
	return records, metadata, nil
}

func decodeRecord(name string, h safeTensorHeader, data []byte) (Record, error) {
	stored, ok := readableDTypes[h.DType]
	if !ok {
		return Record{}, fmt.Errorf("tensor %s: %w: %s", name, ErrUnsupportedDType, h.DType)
	}
	shape := make(tensor.Shape, len(h.Shape))
	n := 1
	for i, d := range h.Shape {
		if d < 0 || d > math.MaxInt32 {
			return Record{}, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("dimension %d out of range", d)}
		}
		shape[i] = int(d)
		if d > 0 && n > math.MaxInt/stored.size/int(d) {
			return Record{}, &ValidationError{Type: "invalid_shape", Tensor: name, Details: fmt.Sprintf("shape %v overflows the element count", h.Shape)}
		}
		n *= int(d)
	}
	chunk := data[h.DataOffsets[0]:h.DataOffsets[1]]
	if len(chunk) != n*stored.size {
		return Record{}, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("shape %v needs %d bytes, got %d", []int(shape), n*stored.size, len(chunk)),
		}
	}

	var values tensor.Values
	switch h.DType {
	case "F32":
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk[i*4:]))
		}
		values = vals
	case "F16":
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = float16.Frombits(binary.LittleEndian.Uint16(chunk[i*2:])).Float32()
		}
		values = vals
	case "BF16":
		values = bfloat16.DecodeFloat32(chunk)
	case "I32":
		vals := make([]int32, n)
		for i := range vals {
			vals[i] = int32(binary.LittleEndian.Uint32(chunk[i*4:]))
		}
		values = vals
	case "BOOL":
		vals := make([]bool, n)
		for i := range vals {
			vals[i] = chunk[i] != 0
		}
		values = vals
	}
	return Record{Name: name, DType: stored.dtype, Shape: shape, Values: values}, nil
}
