// Package payload turns a captured frame and a gyroscope reading into the
// JSON text message streamed to the collector:
//
//	{"frame": "<base64 JPEG>", "gyro": {"x": 0.1, "y": -0.2, "z": 0.0}}
package payload

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/gyrocam/client/internal/sensor"
)

// ErrEncodeFailure marks a cycle whose inputs could not be turned into a
// message. Like a capture failure it only costs that one cycle.
var ErrEncodeFailure = errors.New("encode failed")

// Gyro carries the three rotation-rate axes.
type Gyro struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Message is one outbound wire message. It is a value type; once built it
// is not modified.
type Message struct {
	Frame string `json:"frame"`
	Gyro  Gyro   `json:"gyro"`
}

// Encode builds a Message from raw image bytes and a reading. It performs no
// I/O. An empty frame is treated as a malformed capture result.
func Encode(frame []byte, r sensor.Reading) (Message, error) {
	if len(frame) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrEncodeFailure)
	}
	return Message{
		Frame: base64.StdEncoding.EncodeToString(frame),
		Gyro:  Gyro{X: r.X, Y: r.Y, Z: r.Z},
	}, nil
}

// Marshal renders m as JSON text. JSON has no representation for NaN or
// infinities, so a reading carrying one fails the cycle.
func Marshal(m Message) ([]byte, error) {
	for _, v := range [...]float64{m.Gyro.X, m.Gyro.Y, m.Gyro.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite gyro value %v", ErrEncodeFailure, v)
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	return data, nil
}

// Build is Encode followed by Marshal.
func Build(frame []byte, r sensor.Reading) ([]byte, error) {
	m, err := Encode(frame, r)
	if err != nil {
		return nil, err
	}
	return Marshal(m)
}

// Decode parses a wire message and returns it together with the decoded
// frame bytes.
func Decode(data []byte) (Message, []byte, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, nil, fmt.Errorf("decode message: %w", err)
	}
	frame, err := base64.StdEncoding.DecodeString(m.Frame)
	if err != nil {
		return Message{}, nil, fmt.Errorf("decode frame: %w", err)
	}
	return m, frame, nil
}
