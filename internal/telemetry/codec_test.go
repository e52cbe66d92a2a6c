package telemetry

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/cellink/pkg/options"
)

func TestFrameRoundTrip(t *testing.T) {
	p := NewPayload(4)
	require.NoError(t, p.Push(sampleAt(-7)))
	require.NoError(t, p.Push(sampleAt(1234)))
	p.RecordTimeout()

	frame, err := EncodeFrame("node-7", "boot-1", p)
	require.NoError(t, err)

	assert.Equal(t, FrameMagic, binary.LittleEndian.Uint16(frame))
	assert.Equal(t, FrameVersion, frame[2])
	assert.Equal(t, len(frame)-8, int(binary.LittleEndian.Uint16(frame[4:])))

	r, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, "node-7", r.DeviceID)
	assert.Equal(t, "boot-1", r.BootID)
	assert.Equal(t, uint32(1), r.Timeouts)
	require.Len(t, r.Samples, 2)
	assert.Equal(t, int64(-7), r.Samples[0].Value)
	assert.Equal(t, int64(-70), r.Samples[0].Aux)
	assert.True(t, sampleAt(1234).Timestamp.Equal(r.Samples[1].Timestamp))
}

func TestEmptyPayloadFrame(t *testing.T) {
	frame, err := EncodeFrame("", "", NewPayload(1))
	require.NoError(t, err)
	r, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Empty(t, r.Samples)
	assert.Zero(t, r.Timeouts)
}

func TestDecodeFrameRejectsCorruption(t *testing.T) {
	p := NewPayload(1)
	require.NoError(t, p.Push(sampleAt(5)))
	good, err := EncodeFrame("node-7", "boot-1", p)
	require.NoError(t, err)

	mutate := func(f func([]byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return f(b)
	}

	_, err = DecodeFrame(good[:5])
	assert.ErrorIs(t, err, ErrFrameShort)

	_, err = DecodeFrame(mutate(func(b []byte) []byte { b[0] = 0; return b }))
	assert.ErrorIs(t, err, ErrFrameMagic)

	_, err = DecodeFrame(mutate(func(b []byte) []byte { b[2] = 9; return b }))
	assert.ErrorIs(t, err, ErrFrameVersion)

	_, err = DecodeFrame(mutate(func(b []byte) []byte { return b[:len(b)-1] }))
	assert.ErrorIs(t, err, ErrFrameLength)

	_, err = DecodeFrame(mutate(func(b []byte) []byte { b[8] ^= 0xff; return b }))
	assert.ErrorIs(t, err, ErrFrameChecksum)
}

func TestChecksumIsModbus(t *testing.T) {
	// CRC-16/MODBUS check value.
	table := crc16.MakeTable(crc16.CRC16_MODBUS)
	assert.Equal(t, uint16(0x4B37), crc16.Checksum([]byte("123456789"), table))
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	frame, err := EncodeFrame("node-7", "boot-1", NewPayload(1))
	require.NoError(t, err)

	n := int(binary.LittleEndian.Uint16(frame[4:]))
	body := append([]byte(nil), frame[6:6+n]...)
	// field 15, varint 1
	body = append(body, 15<<3, 1)

	rebuilt := binary.LittleEndian.AppendUint16(nil, FrameMagic)
	rebuilt = append(rebuilt, FrameVersion, 0)
	rebuilt = binary.LittleEndian.AppendUint16(rebuilt, uint16(len(body)))
	rebuilt = append(rebuilt, body...)
	rebuilt = binary.LittleEndian.AppendUint16(rebuilt, crc16.Checksum(rebuilt, crcTable))

	r, err := DecodeFrame(rebuilt)
	require.NoError(t, err)
	assert.Equal(t, "node-7", r.DeviceID)
}

func TestLargestAcceptedPayloadFitsOneFrame(t *testing.T) {
	p := NewPayload(options.MaxPayloadCapacity)
	for range options.MaxPayloadCapacity {
		require.NoError(t, p.Push(Sample{Value: math.MinInt64, Timestamp: time.UnixMilli(-1), Aux: math.MinInt64}))
	}
	for range 3 {
		p.RecordTimeout()
	}

	deviceID := strings.Repeat("d", options.MaxDeviceIDLength)
	bootID := "5f0c8a52-4d7e-4b8e-9a51-7c2d1e0f3b6a"
	frame, err := EncodeFrame(deviceID, bootID, p)
	require.NoError(t, err)

	r, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Len(t, r.Samples, options.MaxPayloadCapacity)
	assert.Equal(t, uint32(3), r.Timeouts)
}
