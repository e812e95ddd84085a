// Package record encodes tracked faces into the fixed 132-byte little-endian
// record understood by the receiver, and decodes them back.
//
// Layout:
//
//	 0  u32  magic (128)
//	 4  u32  payload version (1)
//	 8  16B  face identifier, raw bytes
//	24  f32  position X, Y, Z (offset applied)
//	36  f32  forward X, Y, Z
//	48  f32  up X, Y, Z
//	60  f32  18 blend shapes in face.BlendShape order
//
// Vectors are remapped from the sensor basis (x right, y up, z forward) to
// the receiver basis: (x, y, z) -> (z, -x, y).
package record

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/pkg/face"
)

// Wire constants. Magic and Version are fixed by the receiver.
const (
	Magic   uint32 = 128
	Version uint32 = 1

	Size = 132

	idOffset         = 8
	positionOffset   = 24
	forwardOffset    = 36
	upOffset         = 48
	BlendShapeOffset = 60
)

// Record is a decoded face record. Vectors are in receiver axes.
type Record struct {
	ID          uuid.UUID
	Position    mgl32.Vec3
	Forward     mgl32.Vec3
	Up          mgl32.Vec3
	BlendShapes [face.NumBlendShapes]float32
}

// BlendShape returns the decoded intensity of b.
func (r Record) BlendShape(b face.BlendShape) float32 {
	return r.BlendShapes[b]
}

// Shapes returns the intensities as a complete blend-shape map.
func (r Record) Shapes() face.BlendShapes {
	bs := make(face.BlendShapes, face.NumBlendShapes)
	for i, v := range r.BlendShapes {
		bs[face.BlendShape(i)] = v
	}
	return bs
}

// Remap converts a sensor-basis vector into the receiver basis.
func Remap(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v.Z(), -v.X(), v.Y()}
}

// Encode returns the record for f with off applied to its position.
func Encode(f face.TrackedFace, off face.Offset) ([]byte, error) {
	return Append(make([]byte, 0, Size), f, off)
}

// Append encodes f and appends the record to dst. On error dst is returned
// unchanged.
func Append(dst []byte, f face.TrackedFace, off face.Offset) ([]byte, error) {
	offset, ok := off.Vec()
	if !ok {
		return dst, ErrIncompleteOffset
	}
	if missing := f.BlendShapes.Missing(); len(missing) > 0 {
		return dst, fmt.Errorf("%w: %s", ErrMissingBlendShape, missing[0])
	}

	var buf [Size]byte
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	copy(buf[idOffset:], f.ID[:])

	putVec3(buf[positionOffset:], Remap(f.Pose.Position()).Add(offset))
	putVec3(buf[forwardOffset:], Remap(f.Pose.Forward()))
	putVec3(buf[upOffset:], Remap(f.Pose.Up()))

	for i := 0; i < face.NumBlendShapes; i++ {
		putFloat32(buf[BlendShapeOffset+4*i:], f.BlendShapes[face.BlendShape(i)])
	}

	return append(dst, buf[:]...), nil
}

// Decode parses exactly one record from the start of b.
func Decode(b []byte) (Record, error) {
	var r Record
	if len(b) < Size {
		return r, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	if m := binary.LittleEndian.Uint32(b[0:]); m != Magic {
		return r, fmt.Errorf("%w: %d", ErrBadMagic, m)
	}
	if v := binary.LittleEndian.Uint32(b[4:]); v != Version {
		return r, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	copy(r.ID[:], b[idOffset:idOffset+16])
	r.Position = getVec3(b[positionOffset:])
	r.Forward = getVec3(b[forwardOffset:])
	r.Up = getVec3(b[upOffset:])
	for i := range r.BlendShapes {
		r.BlendShapes[i] = getFloat32(b[BlendShapeOffset+4*i:])
	}
	return r, nil
}

// DecodeAll parses a datagram of back-to-back records.
func DecodeAll(datagram []byte) ([]Record, error) {
	if len(datagram)%Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingBytes, len(datagram)%Size)
	}
	records := make([]Record, 0, len(datagram)/Size)
	for off := 0; off < len(datagram); off += Size {
		r, err := Decode(datagram[off : off+Size])
		if err != nil {
			return records, fmt.Errorf("record %d: %w", off/Size, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func putVec3(b []byte, v mgl32.Vec3) {
	putFloat32(b[0:], v.X())
	putFloat32(b[4:], v.Y())
	putFloat32(b[8:], v.Z())
}

func getVec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{getFloat32(b[0:]), getFloat32(b[4:]), getFloat32(b[8:])}
}

func putFloat32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
