package mediastore

import (
	"encoding/binary"
	"errors"
	"math"
)

// Payloads understood by the simulated store are a sequence of sample
// frames:
//
//	"SMPL" | start float64 BE | duration float64 BE | size uint32 BE | size bytes
//
// Frames concatenate, so two payloads appended back to back decode exactly
// like the two payloads appended separately.
const (
	sampleMagic      = "SMPL"
	sampleHeaderSize = 4 + 8 + 8 + 4
)

// ErrMalformedPayload is returned by DecodeSamples on truncated or foreign
// input.
var ErrMalformedPayload = errors.New("malformed sample payload")

// Sample is one timed unit of media.
type Sample struct {
	Start    float64
	Duration float64
	Data     []byte
}

// EncodeSamples builds a payload holding samples in order.
func EncodeSamples(samples ...Sample) []byte {
	size := 0
	for _, s := range samples {
		size += sampleHeaderSize + len(s.Data)
	}
	out := make([]byte, 0, size)
	for _, s := range samples {
		out = append(out, sampleMagic...)
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(s.Start))
		out = binary.BigEndian.AppendUint64(out, math.Float64bits(s.Duration))
		out = binary.BigEndian.AppendUint32(out, uint32(len(s.Data)))
		out = append(out, s.Data...)
	}
	return out
}

// DecodeSamples parses a payload built by EncodeSamples. Data slices alias
// payload.
func DecodeSamples(payload []byte) ([]Sample, error) {
	var samples []Sample
	for len(payload) > 0 {
		if len(payload) < sampleHeaderSize || string(payload[:4]) != sampleMagic {
			return nil, ErrMalformedPayload
		}
		start := math.Float64frombits(binary.BigEndian.Uint64(payload[4:12]))
		dur := math.Float64frombits(binary.BigEndian.Uint64(payload[12:20]))
		size := int(binary.BigEndian.Uint32(payload[20:24]))
		payload = payload[sampleHeaderSize:]
		if size > len(payload) || dur < 0 || math.IsNaN(start) || math.IsNaN(dur) {
			return nil, ErrMalformedPayload
		}
		samples = append(samples, Sample{Start: start, Duration: dur, Data: payload[:size]})
		payload = payload[size:]
	}
	return samples, nil
}
