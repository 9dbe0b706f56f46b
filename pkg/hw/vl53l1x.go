package hw

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// VL53L1XAddr is the sensor's power-on I2C address.
const VL53L1XAddr = 0x29

// VL53L1X registers (16-bit indices).
const (
	regSystemIntClear   = 0x0086
	regSystemModeStart  = 0x0087
	regGPIOHVMuxCtrl    = 0x0030
	regGPIOTIOHVStatus  = 0x0031
	regVHVTimeoutMacrop = 0x0008
	regVHVStartAddr     = 0x000B
	regRangeStatus      = 0x0089
	regRangeMM          = 0x0096
	regModelID          = 0x010F
	regConfigStart      = 0x002D

	modelID         = 0xEACC
	rangeStatusGood = 9
)

// defaultConfig is the ST ultra-lite driver configuration block written to
// 0x2D..0x87 at boot.
var defaultConfig = []byte{
	0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x02, 0x08, // 0x2d
	0x00, 0x08, 0x10, 0x01, 0x01, 0x00, 0x00, 0x00, // 0x35
	0x00, 0xff, 0x00, 0x0f, 0x00, 0x00, 0x00, 0x00, // 0x3d
	0x00, 0x20, 0x0b, 0x00, 0x00, 0x02, 0x0a, 0x21, // 0x45
	0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0xc8, // 0x4d
	0x00, 0x00, 0x38, 0xff, 0x01, 0x00, 0x08, 0x00, // 0x55
	0x00, 0x01, 0xcc, 0x0f, 0x01, 0xf1, 0x0d, 0x01, // 0x5d
	0x68, 0x00, 0x80, 0x08, 0xb8, 0x00, 0x00, 0x00, // 0x65
	0x00, 0x0f, 0x89, 0x00, 0x00, 0x00, 0x00, 0x00, // 0x6d
	0x00, 0x00, 0x01, 0x0f, 0x0d, 0x0e, 0x0e, 0x00, // 0x75
	0x00, 0x02, 0xc7, 0xff, 0x9b, 0x00, 0x00, 0x00, // 0x7d
	0x01, 0x00, 0x00, // 0x85
}

// VL53L1X is a time-of-flight distance sensor in continuous ranging mode.
type VL53L1X struct {
	mu       sync.Mutex
	dev      *i2c.Dev
	closer   io.Closer
	polarity byte
	poll     time.Duration
}

// NewVL53L1X boots the sensor on bus and starts continuous ranging.
func NewVL53L1X(ctx context.Context, bus i2c.Bus, addr uint16) (*VL53L1X, error) {
	if addr == 0 {
		addr = VL53L1XAddr
	}
	s := &VL53L1X{
		dev:  &i2c.Dev{Addr: addr, Bus: bus},
		poll: 2 * time.Millisecond,
	}
	if err := s.boot(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenVL53L1X opens the named I2C bus ("" for the first one) and boots the
// sensor. Close releases the bus.
func OpenVL53L1X(ctx context.Context, busName string, addr uint16) (*VL53L1X, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("hw: open i2c bus %q: %w", busName, err)
	}
	s, err := NewVL53L1X(ctx, bus, addr)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	s.closer = bus
	return s, nil
}

func (s *VL53L1X) boot(ctx context.Context) error {
	id, err := s.read16(regModelID)
	if err != nil {
		return fmt.Errorf("hw: vl53l1x: read model id: %w", err)
	}
	if id != modelID {
		return fmt.Errorf("%w: vl53l1x model 0x%04x", ErrBadDevice, id)
	}
	if err := s.write(regConfigStart, defaultConfig...); err != nil {
		return fmt.Errorf("hw: vl53l1x: write config: %w", err)
	}
	mux, err := s.read8(regGPIOHVMuxCtrl)
	if err != nil {
		return fmt.Errorf("hw: vl53l1x: read polarity: %w", err)
	}
	s.polarity = 1
	if mux&0x10 != 0 {
		s.polarity = 0
	}

	// One throwaway measurement completes VHV calibration.
	if err := s.write(regSystemModeStart, 0x40); err != nil {
		return err
	}
	if err := s.waitReady(ctx); err != nil {
		return fmt.Errorf("hw: vl53l1x: first measurement: %w", err)
	}
	if err := s.write(regSystemIntClear, 0x01); err != nil {
		return err
	}
	if err := s.write(regSystemModeStart, 0x00); err != nil {
		return err
	}
	if err := s.write(regVHVTimeoutMacrop, 0x09); err != nil {
		return err
	}
	if err := s.write(regVHVStartAddr, 0x00); err != nil {
		return err
	}
	return s.write(regSystemModeStart, 0x40)
}

// DistanceCM waits for the next ranging result and returns it.
func (s *VL53L1X) DistanceCM(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.waitReady(ctx); err != nil {
		return 0, err
	}
	status, err := s.read8(regRangeStatus)
	if err != nil {
		return 0, err
	}
	mm, err := s.read16(regRangeMM)
	if err != nil {
		return 0, err
	}
	if err := s.write(regSystemIntClear, 0x01); err != nil {
		return 0, err
	}
	if status&0x1F != rangeStatusGood {
		return 0, fmt.Errorf("%w: range status %d", ErrOutOfRange, status&0x1F)
	}
	return float64(mm) / 10, nil
}

func (s *VL53L1X) waitReady(ctx context.Context) error {
	for {
		v, err := s.read8(regGPIOTIOHVStatus)
		if err != nil {
			return err
		}
		if v&0x01 == s.polarity {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.poll):
		}
	}
}

// Close stops ranging and releases the bus if this sensor opened it.
func (s *VL53L1X) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.write(regSystemModeStart, 0x00)
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

func (s *VL53L1X) write(reg uint16, data ...byte) error {
	buf := make([]byte, 2, 2+len(data))
	binary.BigEndian.PutUint16(buf, reg)
	buf = append(buf, data...)
	return s.dev.Tx(buf, nil)
}

func (s *VL53L1X) read8(reg uint16) (byte, error) {
	var w [2]byte
	var r [1]byte
	binary.BigEndian.PutUint16(w[:], reg)
	if err := s.dev.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (s *VL53L1X) read16(reg uint16) (uint16, error) {
	var w [2]byte
	var r [2]byte
	binary.BigEndian.PutUint16(w[:], reg)
	if err := s.dev.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r[:]), nil
}
