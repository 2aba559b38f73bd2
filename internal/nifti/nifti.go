// Package nifti reads NIfTI-1 volumes, the interchange format for the
// DWI/ADC inputs and lesion masks this service works with. It covers the
// single-file (.nii / .nii.gz) layout and the scalar datatypes DeepISLES
// emits; it is not a general neuroimaging library.
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const headerSize = 348

// Scalar datatypes from the NIfTI-1 standard.
const (
	typeUint8   = 2
	typeInt16   = 4
	typeInt32   = 8
	typeFloat32 = 16
	typeFloat64 = 64
)

// ErrBadMagic means the file is not a single-file NIfTI-1 volume.
var ErrBadMagic = errors.New("not a NIfTI-1 file")

// Image is a decoded 3D volume. Data is in x-fastest order and has
// Dim[0]*Dim[1]*Dim[2] elements with scl_slope/scl_inter applied.
type Image struct {
	Dim    [3]int
	Pixdim [3]float64 // voxel size in mm
	Data   []float64
}

// VoxelVolumeMM3 returns the volume of one voxel in cubic millimetres.
func (img *Image) VoxelVolumeMM3() float64 {
	return img.Pixdim[0] * img.Pixdim[1] * img.Pixdim[2]
}

// header mirrors the fixed 348-byte NIfTI-1 header.
type header struct {
	SizeofHdr     int32
	DataTypeName  [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Load reads a NIfTI-1 file from disk, transparently decompressing
// gzipped files.
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nifti: %w", err)
	}

	// gzip magic
	if len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gunzip nifti: %w", err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("gunzip nifti: %w", err)
		}
	}

	return Decode(raw)
}

// Decode parses an uncompressed NIfTI-1 byte stream.
func Decode(raw []byte) (*Image, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrBadMagic, len(raw))
	}

	var hdr header
	order := binary.ByteOrder(binary.LittleEndian)
	if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if hdr.SizeofHdr != headerSize {
		// Byte-swapped file; retry big-endian.
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw), order, &hdr); err != nil {
			return nil, fmt.Errorf("parse header: %w", err)
		}
		if hdr.SizeofHdr != headerSize {
			return nil, fmt.Errorf("%w: sizeof_hdr=%d", ErrBadMagic, hdr.SizeofHdr)
		}
	}

	if string(hdr.Magic[:3]) != "n+1" {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, hdr.Magic[:3])
	}
	if hdr.Dim[0] < 3 || hdr.Dim[0] > 7 {
		return nil, fmt.Errorf("unsupported dimensionality %d", hdr.Dim[0])
	}

	img := &Image{}
	nvox := 1
	for i := 0; i < 3; i++ {
		d := int(hdr.Dim[i+1])
		if d < 1 {
			return nil, fmt.Errorf("invalid dim[%d]=%d", i+1, d)
		}
		img.Dim[i] = d
		img.Pixdim[i] = float64(hdr.Pixdim[i+1])
		nvox *= d
	}

	elemSize := int(hdr.Bitpix) / 8
	offset := int(hdr.VoxOffset)
	if offset < headerSize || elemSize <= 0 || len(raw) < offset+nvox*elemSize {
		return nil, fmt.Errorf("truncated voxel data (need %d bytes at offset %d, have %d)",
			nvox*elemSize, offset, len(raw))
	}
	body := raw[offset:]

	data := make([]float64, nvox)
	switch hdr.Datatype {
	case typeUint8:
		for i := range data {
			data[i] = float64(body[i])
		}
	case typeInt16:
		for i := range data {
			data[i] = float64(int16(order.Uint16(body[i*2:])))
		}
	case typeInt32:
		for i := range data {
			data[i] = float64(int32(order.Uint32(body[i*4:])))
		}
	case typeFloat32:
		for i := range data {
			data[i] = float64(math.Float32frombits(order.Uint32(body[i*4:])))
		}
	case typeFloat64:
		for i := range data {
			data[i] = math.Float64frombits(order.Uint64(body[i*8:]))
		}
	default:
		return nil, fmt.Errorf("unsupported datatype %d", hdr.Datatype)
	}

	// scl_slope == 0 means "no scaling" per the standard.
	if hdr.SclSlope != 0 && (hdr.SclSlope != 1 || hdr.SclInter != 0) {
		slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	img.Data = data
	return img, nil
}

// Encode serializes img as an uncompressed single-file float32 NIfTI-1
// volume. Mainly used by tests and tooling to produce fixtures.
func Encode(img *Image) ([]byte, error) {
	nvox := img.Dim[0] * img.Dim[1] * img.Dim[2]
	if nvox <= 0 || len(img.Data) != nvox {
		return nil, fmt.Errorf("data length %d does not match dims %v", len(img.Data), img.Dim)
	}

	hdr := header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  typeFloat32,
		Bitpix:    32,
		VoxOffset: headerSize + 4, // one 4-byte extension flag block
		SclSlope:  1,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	hdr.Dim[0] = 3
	hdr.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		hdr.Dim[i+1] = int16(img.Dim[i])
		pd := img.Pixdim[i]
		if pd == 0 {
			pd = 1
		}
		hdr.Pixdim[i+1] = float32(pd)
	}
	for i := 4; i < 8; i++ {
		hdr.Dim[i] = 1
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	buf.Write([]byte{0, 0, 0, 0}) // no header extensions
	for _, v := range img.Data {
		if err := binary.Write(&buf, binary.LittleEndian, float32(v)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Save writes img to path, gzipping when the name ends in .gz.
func Save(img *Image, path string) error {
	raw, err := Encode(img)
	if err != nil {
		return err
	}
	if len(path) > 3 && path[len(path)-3:] == ".gz" {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		raw = buf.Bytes()
	}
	return os.WriteFile(path, raw, 0o644)
}
