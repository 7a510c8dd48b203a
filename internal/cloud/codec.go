package cloud

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

/*
Packed cloud wire format (little-endian), used on the MQTT topics:

├── Header (22 bytes + frame id)
│   ├── magic        [4]byte  "SGPC"
│   ├── seq          uint32
│   ├── stamp        int64    unix nanoseconds, 0 = unset
│   ├── frameIDLen   uint16
│   ├── frameID      [frameIDLen]byte
│   └── pointCount   uint32
└── Points (pointCount × 20 bytes)
    └── x,y,z float32 | r,g,b uint8 | pad uint8 | label uint32
*/

const (
	wireMagic       = "SGPC"
	wireFixedHeader = 4 + 4 + 8 + 2 + 4
	wirePointSize   = 20
	maxFrameIDLen   = math.MaxUint16
)

var (
	// ErrBadMagic is returned when a payload does not start with the codec magic.
	ErrBadMagic = errors.New("cloud: payload is not a packed cloud")
	// ErrShortPayload is returned when a payload is shorter than its header claims.
	ErrShortPayload = errors.New("cloud: payload truncated")
)

// MarshalBinary encodes the cloud in the packed wire format.
func (c *Cloud) MarshalBinary() ([]byte, error) {
	if len(c.Header.FrameID) > maxFrameIDLen {
		return nil, fmt.Errorf("frame id too long: %d bytes", len(c.Header.FrameID))
	}
	if uint64(len(c.Points)) > math.MaxUint32 {
		return nil, fmt.Errorf("too many points: %d", len(c.Points))
	}

	buf := make([]byte, wireFixedHeader+len(c.Header.FrameID)+wirePointSize*len(c.Points))
	off := copy(buf, wireMagic)

	binary.LittleEndian.PutUint32(buf[off:], c.Header.Seq)
	off += 4

	var stamp int64
	if !c.Header.Stamp.IsZero() {
		stamp = c.Header.Stamp.UnixNano()
	}
	binary.LittleEndian.PutUint64(buf[off:], uint64(stamp))
	off += 8

	binary.LittleEndian.PutUint16(buf[off:], uint16(len(c.Header.FrameID)))
	off += 2
	off += copy(buf[off:], c.Header.FrameID)

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Points)))
	off += 4

	for _, p := range c.Points {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(p.Z))
		buf[off+12] = p.R
		buf[off+13] = p.G
		buf[off+14] = p.B
		binary.LittleEndian.PutUint32(buf[off+16:], p.Label)
		off += wirePointSize
	}

	return buf, nil
}

// UnmarshalBinary decodes a packed cloud, replacing the receiver's content.
// Non-finite coordinates are decoded as-is; callers apply RemoveNaN.
func (c *Cloud) UnmarshalBinary(data []byte) error {
	if len(data) < wireFixedHeader {
		return ErrShortPayload
	}
	if string(data[:4]) != wireMagic {
		return ErrBadMagic
	}
	off := 4

	var h Header
	h.Seq = binary.LittleEndian.Uint32(data[off:])
	off += 4

	if stamp := int64(binary.LittleEndian.Uint64(data[off:])); stamp != 0 {
		h.Stamp = time.Unix(0, stamp).UTC()
	}
	off += 8

	idLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	if len(data) < wireFixedHeader+idLen {
		return ErrShortPayload
	}
	h.FrameID = string(data[off : off+idLen])
	off += idLen

	count := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if remaining := len(data) - off; remaining != count*wirePointSize {
		if remaining < count*wirePointSize {
			return ErrShortPayload
		}
		return fmt.Errorf("cloud: %d trailing bytes after %d points", remaining-count*wirePointSize, count)
	}

	points := make([]Point, count)
	for i := range points {
		points[i] = Point{
			X:     math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
			Y:     math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])),
			Z:     math.Float32frombits(binary.LittleEndian.Uint32(data[off+8:])),
			R:     data[off+12],
			G:     data[off+13],
			B:     data[off+14],
			Label: binary.LittleEndian.Uint32(data[off+16:]),
		}
		off += wirePointSize
	}

	c.Header = h
	c.Points = points
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(data []byte) (Cloud, error) {
	var c Cloud
	if err := c.UnmarshalBinary(data); err != nil {
		return Cloud{}, err
	}
	return c, nil
}
