package telemetry

import (
	"errors"
	"slices"
	"time"
)

// ErrPayloadFull is returned by Push when the payload is at capacity.
var ErrPayloadFull = errors.New("payload full")

// Sample is one sensor reading.
type Sample struct {
	Value     int64
	Timestamp time.Time
	Aux       int64
}

// Payload is a bounded, ordered batch of samples plus the number of
// consecutive transmit timeouts. It is owned by the loop task.
type Payload struct {
	samples  []Sample
	capacity int
	timeouts uint32
}

// NewPayload creates an empty payload holding at most capacity samples.
func NewPayload(capacity int) *Payload {
	return &Payload{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
	}
}

// Push appends s. A full payload is left unchanged.
func (p *Payload) Push(s Sample) error {
	if len(p.samples) >= p.capacity {
		return ErrPayloadFull
	}
	p.samples = append(p.samples, s)
	return nil
}

// Samples returns a copy of the samples in push order.
func (p *Payload) Samples() []Sample {
	return slices.Clone(p.samples)
}

func (p *Payload) Len() int { return len(p.samples) }
func (p *Payload) Cap() int { return p.capacity }

// Timeouts is the number of transmits abandoned since the last success.
func (p *Payload) Timeouts() uint32 { return p.timeouts }

// RecordTimeout counts an abandoned transmit. Samples are kept.
func (p *Payload) RecordTimeout() {
	p.timeouts++
}

// Reset clears the samples and the timeout counter after a confirmed
// transmit.
func (p *Payload) Reset() {
	p.samples = p.samples[:0]
	p.timeouts = 0
}
