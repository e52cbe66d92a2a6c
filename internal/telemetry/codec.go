package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sigurn/crc16"
	"google.golang.org/protobuf/encoding/protowire"
)

// Frame layout, all integers little endian:
//
//	magic u16 | version u8 | flags u8 | body length u16 | body | crc16 u16
//
// The checksum is CRC-16/MODBUS over everything before it. The body is
// protobuf wire format:
//
//	1 device id (string), 2 boot id (string), 3 timeouts (varint),
//	4 sample (bytes, repeated): 1 value (sint64), 2 unix millis (int64),
//	3 aux (sint64)
const (
	FrameMagic   uint16 = 0xCE11
	FrameVersion uint8  = 1

	headerSize  = 6
	trailerSize = 2
)

const (
	fieldDeviceID protowire.Number = 1
	fieldBootID   protowire.Number = 2
	fieldTimeouts protowire.Number = 3
	fieldSample   protowire.Number = 4

	fieldSampleValue protowire.Number = 1
	fieldSampleTime  protowire.Number = 2
	fieldSampleAux   protowire.Number = 3
)

var (
	ErrFrameShort    = errors.New("frame too short")
	ErrFrameMagic    = errors.New("bad frame magic")
	ErrFrameVersion  = errors.New("unsupported frame version")
	ErrFrameLength   = errors.New("frame length mismatch")
	ErrFrameChecksum = errors.New("frame checksum mismatch")
	ErrFrameTooLarge = errors.New("frame body too large")
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Report is the decoded content of a frame.
type Report struct {
	DeviceID string
	BootID   string
	Timeouts uint32
	Samples  []Sample
}

// EncodeFrame serializes the payload under the given identities.
func EncodeFrame(deviceID, bootID string, p *Payload) ([]byte, error) {
	var body []byte
	body = protowire.AppendTag(body, fieldDeviceID, protowire.BytesType)
	body = protowire.AppendString(body, deviceID)
	body = protowire.AppendTag(body, fieldBootID, protowire.BytesType)
	body = protowire.AppendString(body, bootID)
	body = protowire.AppendTag(body, fieldTimeouts, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(p.Timeouts()))
	for _, s := range p.samples {
		body = protowire.AppendTag(body, fieldSample, protowire.BytesType)
		body = protowire.AppendBytes(body, encodeSample(s))
	}
	if len(body) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	frame := make([]byte, 0, headerSize+len(body)+trailerSize)
	frame = binary.LittleEndian.AppendUint16(frame, FrameMagic)
	frame = append(frame, FrameVersion, 0)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(body)))
	frame = append(frame, body...)
	frame = binary.LittleEndian.AppendUint16(frame, crc16.Checksum(frame, crcTable))
	return frame, nil
}

func encodeSample(s Sample) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldSampleValue, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.Value))
	b = protowire.AppendTag(b, fieldSampleTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Timestamp.UnixMilli()))
	b = protowire.AppendTag(b, fieldSampleAux, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.Aux))
	return b
}

// DecodeFrame validates and parses a frame produced by EncodeFrame.
func DecodeFrame(frame []byte) (*Report, error) {
	if len(frame) < headerSize+trailerSize {
		return nil, ErrFrameShort
	}
	if binary.LittleEndian.Uint16(frame) != FrameMagic {
		return nil, ErrFrameMagic
	}
	if frame[2] != FrameVersion {
		return nil, fmt.Errorf("%w: %d", ErrFrameVersion, frame[2])
	}
	n := int(binary.LittleEndian.Uint16(frame[4:]))
	if len(frame) != headerSize+n+trailerSize {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrFrameLength, n, len(frame)-headerSize-trailerSize)
	}
	sum := binary.LittleEndian.Uint16(frame[headerSize+n:])
	if crc16.Checksum(frame[:headerSize+n], crcTable) != sum {
		return nil, ErrFrameChecksum
	}
	return decodeBody(frame[headerSize : headerSize+n])
}

func decodeBody(b []byte) (*Report, error) {
	r := &Report{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldDeviceID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.DeviceID, b = v, b[n:]
		case num == fieldBootID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.BootID, b = v, b[n:]
		case num == fieldTimeouts && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Timeouts, b = uint32(v), b[n:]
		case num == fieldSample && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			s, err := decodeSample(v)
			if err != nil {
				return nil, err
			}
			r.Samples, b = append(r.Samples, s), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeSample(b []byte) (Sample, error) {
	var s Sample
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldSampleValue:
			s.Value = protowire.DecodeZigZag(v)
		case fieldSampleTime:
			s.Timestamp = time.UnixMilli(int64(v))
		case fieldSampleAux:
			s.Aux = protowire.DecodeZigZag(v)
		}
	}
	return s, nil
}
