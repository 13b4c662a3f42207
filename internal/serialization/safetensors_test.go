package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tfcore/internal/tensor"
)

func TestWriteRead(t *testing.T) {
	records := []Record{
		{Name: "weights", DType: tensor.Float32, Shape: tensor.Shape{2, 2}, Values: []float32{1, -2.5, 3, 0}},
		{Name: "indices", DType: tensor.Int32, Shape: tensor.Shape{3}, Values: []int32{7, -1, 42}},
		{Name: "mask", DType: tensor.Bool, Shape: tensor.Shape{2}, Values: []bool{true, false}},
		{Name: "scalar", DType: tensor.Float32, Shape: tensor.Shape{}, Values: []float32{9}},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, records, map[string]string{"format": "test"}))

	got, meta, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, "test", meta["format"])
	assert.NotEmpty(t, meta[ChecksumKey])

	want := []Record{records[1], records[2], records[3], records[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_ConvertsValuesToDType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Record{
		{Name: "x", DType: tensor.Int32, Shape: tensor.Shape{2}, Values: []float32{1.9, -3}},
	}, nil))

	got, _, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -3}, got[0].Values)
}

func TestWrite_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{"size mismatch", []Record{{Name: "x", DType: tensor.Float32, Shape: tensor.Shape{3}, Values: []float32{1}}}},
		{"bad name", []Record{{Name: "../x", DType: tensor.Float32, Shape: tensor.Shape{1}, Values: []float32{1}}}},
		{"reserved name", []Record{{Name: metadataKey, DType: tensor.Float32, Shape: tensor.Shape{1}, Values: []float32{1}}}},
		{"duplicate", []Record{
			{Name: "x", DType: tensor.Float32, Shape: tensor.Shape{1}, Values: []float32{1}},
			{Name: "x", DType: tensor.Float32, Shape: tensor.Shape{1}, Values: []float32{2}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Write(&bytes.Buffer{}, tt.records, nil))
		})
	}
}

func TestRead_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Record{
		{Name: "x", DType: tensor.Float32, Shape: tensor.Shape{2}, Values: []float32{1, 2}},
	}, nil))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF
	_, _, err := Read(bytes.NewReader(raw))
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func rawFile(t *testing.T, header string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestRead_ForeignFiles(t *testing.T) {
	// No metadata and no checksum is valid SafeTensors.
	ok := rawFile(t, `{"a":{"dtype":"I32","shape":[1],"data_offsets":[0,4]}}`, []byte{5, 0, 0, 0})
	got, meta, err := Read(bytes.NewReader(ok))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, []int32{5}, got[0].Values)

	// Half-precision tensors load as float32.
	half := rawFile(t,
		`{"bf":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]},"f":{"dtype":"F16","shape":[2],"data_offsets":[4,8]}}`,
		[]byte{0x80, 0x3F, 0x20, 0xC0, 0x00, 0x3C, 0x00, 0xC0})
	got, _, err = Read(bytes.NewReader(half))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, tensor.Float32, got[0].DType)
	assert.Equal(t, []float32{1, -2.5}, got[0].Values)
	assert.Equal(t, tensor.Float32, got[1].DType)
	assert.Equal(t, []float32{1, -2}, got[1].Values)

	tests := []struct {
		name string
		file []byte
	}{
		{"unsupported dtype", rawFile(t, `{"a":{"dtype":"F64","shape":[1],"data_offsets":[0,8]}}`, make([]byte, 8))},
		{"out of bounds", rawFile(t, `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`, make([]byte, 4))},
		{"overlap", rawFile(t, `{"a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]},"b":{"dtype":"F32","shape":[1],"data_offsets":[2,6]}}`, make([]byte, 8))},
		{"size mismatch", rawFile(t, `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,4]}}`, make([]byte, 4))},
		{"negative dimension", rawFile(t, `{"a":{"dtype":"F32","shape":[-1],"data_offsets":[0,0]}}`, nil)},
		{"bad json", rawFile(t, `{"a":`, nil)},
		{"truncated", []byte{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Read(bytes.NewReader(tt.file))
			assert.Error(t, err)
		})
	}
}

func TestRead_ShapeOverflow(t *testing.T) {
	// The wrapped element count of this shape would match an empty chunk.
	file := rawFile(t, `{"a":{"dtype":"F32","shape":[2147483647,2147483647,2147483647,4],"data_offsets":[0,0]}}`, nil)
	_, _, err := Read(bytes.NewReader(file))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid_shape", verr.Type)
	assert.Contains(t, verr.Details, "overflows")
}

func TestRead_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
	_, _, err := Read(&buf)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}
