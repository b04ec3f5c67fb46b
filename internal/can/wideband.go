// Package can ingests engine telemetry from the CAN bus: wideband lambda
// frames from the supported controller protocols and the ECU sensor
// broadcast. Decoded values are cached with their arrival time so the
// control loop can poll the latest reading and its age without blocking.
package can

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/notnil/canbus"
	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/logger"
	"github.com/openefi/ecud/internal/safety"
)

// Wideband controller protocols, keyed by CAN id
type lambdaProtocol struct {
	id        uint32
	length    uint8
	afrOffset int
}

var lambdaProtocols = []lambdaProtocol{
	{id: 0x7E8, length: 3, afrOffset: 0}, // FuelTech Nano v1
	{id: 0x7E9, length: 4, afrOffset: 0}, // FuelTech Nano v2
	{id: 0x7E0, length: 3, afrOffset: 0}, // generic wideband
}

// ECU sensor broadcast frames
const (
	statusFrameID = 0x520 // rpm, clt, vbat, map
	flagsFrameID  = 0x521 // knock and friends

	statusFrameLen = 8

	knockFlagBit = 0x01

	stoichAFRx10 = 147.0
)

// FrameSource hands out raw CAN frames. Recv blocks until a frame
// arrives or the source fails.
type FrameSource interface {
	Recv() (canbus.Frame, error)
}

// Receiver decodes telemetry frames and caches the most recent values.
// Safe for concurrent use: the bus reader writes, the control loop polls.
type Receiver struct {
	clock safety.Clock

	mu       sync.Mutex
	lambda   float64
	lambdaTS uint32
	lambdaOK bool
	frame    safety.SensorFrame
	frameTS  uint32
	frameOK  bool
}

// NewReceiver creates a receiver stamping arrivals with the given clock.
// A nil clock selects the runtime monotonic clock.
func NewReceiver(clock safety.Clock) *Receiver {
	if clock == nil {
		clock = safety.NewMonotonicClock()
	}

	return &Receiver{clock: clock}
}

// Run consumes frames from the source until the context is canceled or
// the source fails. Unknown ids are ignored.
func (r *Receiver) Run(ctx context.Context, source FrameSource) error {
	errFactory := errors.New()

	for {
		frame, err := source.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errFactory.Wrap(errors.ErrOperationFailed, err)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		r.Handle(frame)
	}
}

// Handle decodes one frame into the cache
func (r *Receiver) Handle(frame canbus.Frame) {
	for _, proto := range lambdaProtocols {
		if frame.ID != proto.id {
			continue
		}
		if frame.Len < proto.length {
			logger.Debug().
				Uint32("id", frame.ID).
				Int("len", int(frame.Len)).
				Msg("Short wideband frame dropped")
			return
		}

		afrX10 := binary.LittleEndian.Uint16(frame.Data[proto.afrOffset : proto.afrOffset+2])
		r.mu.Lock()
		r.lambda = float64(afrX10) / stoichAFRx10
		r.lambdaTS = r.clock.NowMillis()
		r.lambdaOK = true
		r.mu.Unlock()
		return
	}

	switch frame.ID {
	case statusFrameID:
		if frame.Len < statusFrameLen {
			return
		}
		decoded := safety.SensorFrame{
			RPM:          binary.LittleEndian.Uint16(frame.Data[0:2]),
			CoolantTempC: int16(binary.LittleEndian.Uint16(frame.Data[2:4])),
			Battery:      safety.Decivolts(binary.LittleEndian.Uint16(frame.Data[4:6])),
			MAPKPa10:     int(binary.LittleEndian.Uint16(frame.Data[6:8])),
		}
		r.mu.Lock()
		knock := r.frame.KnockDetected
		r.frame = decoded
		r.frame.KnockDetected = knock
		r.frameTS = r.clock.NowMillis()
		r.frameOK = true
		r.mu.Unlock()
	case flagsFrameID:
		if frame.Len < 1 {
			return
		}
		r.mu.Lock()
		r.frame.KnockDetected = frame.Data[0]&knockFlagBit != 0
		r.mu.Unlock()
	}
}

// LatestLambda returns the most recent lambda reading and its age in
// milliseconds. ok is false until the first wideband frame arrives.
func (r *Receiver) LatestLambda() (lambda float64, ageMS uint32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lambdaOK {
		return 0, 0, false
	}

	return r.lambda, r.clock.NowMillis() - r.lambdaTS, true
}

// Latest returns the most recent sensor frame and its age, implementing
// safety.SensorSource.
func (r *Receiver) Latest() (safety.SensorFrame, uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frameOK {
		return safety.SensorFrame{}, 0, false
	}

	return r.frame, r.clock.NowMillis() - r.frameTS, true
}
