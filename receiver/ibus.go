/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	ibus.go: FlySky iBus serial receiver.
*/

package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"

	"github.com/b3nn0/fbw/common"
)

const (
	ibusHeader1    = 0x20
	ibusHeader2    = 0x40
	ibusPacketSize = 32 // header (2) + channels (14 * 2) + checksum (2)
	ibusChannels   = 14
)

// Failsafe is how long the last frame stays valid.
var Failsafe = 500 * time.Millisecond

// IBus decodes iBus frames from a serial port.
type IBus struct {
	Device string
	Baud   int

	packet [ibusPacketSize]byte
	index  int

	mu       sync.Mutex
	channels [ibusChannels]uint16
	last     time.Time
	frames   uint64
	corrupt  uint64

	now func() time.Time
	log *logrus.Entry
}

func NewIBus(device string, baud int, log *logrus.Logger) *IBus {
	return &IBus{
		Device: device,
		Baud:   baud,
		now:    time.Now,
		log:    log.WithField("sys", "receiver"),
	}
}

// Run reads frames until ctx is done, reopening the port after failures.
func (r *IBus) Run(ctx context.Context) {
	for {
		port, err := serial.OpenPort(&serial.Config{Name: r.Device, Baud: r.Baud, ReadTimeout: 100 * time.Millisecond})
		if err != nil {
			r.log.Errorf("open %s: %s", r.Device, err)
		} else {
			r.log.Infof("reading iBus on %s", r.Device)
			for ctx.Err() == nil {
				err = r.read(port)
				// An idle line reads as EOF until the timeout.
				if !errors.Is(err, io.EOF) {
					break
				}
			}
			if err != nil && ctx.Err() == nil {
				r.log.Warnf("reading %s: %s", r.Device, err)
			}
			port.Close()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *IBus) read(rd io.Reader) error {
	buf := make([]byte, 64)
	for {
		n, err := rd.Read(buf)
		for _, b := range buf[:n] {
			r.feed(b)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.EOF
		}
	}
}

// feed advances the frame parser by one byte, reporting a decoded frame.
func (r *IBus) feed(b byte) bool {
	switch {
	case r.index == 0 && b != ibusHeader1:
		return false
	case r.index == 1 && b != ibusHeader2:
		r.index = 0
		if b == ibusHeader1 {
			r.index = 1
		}
		return false
	}
	r.packet[r.index] = b
	r.index++
	if r.index < ibusPacketSize {
		return false
	}
	r.index = 0

	sum := uint16(0xFFFF)
	for _, v := range r.packet[:ibusPacketSize-2] {
		sum -= uint16(v)
	}
	received := uint16(r.packet[30]) | uint16(r.packet[31])<<8

	r.mu.Lock()
	defer r.mu.Unlock()
	if received != sum {
		r.corrupt++
		return false
	}
	for i := range r.channels {
		r.channels[i] = uint16(r.packet[2+2*i]) | uint16(r.packet[3+2*i])<<8
	}
	r.last = r.now()
	r.frames++
	return true
}

// Get returns the channel position, or ErrFailsafe without a recent frame.
func (r *IBus) Get(ch Channel) (float64, error) {
	if ch < 0 || int(ch) >= ibusChannels {
		return 0, fmt.Errorf("%s: %w", ch, ErrNoChannel)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last.IsZero() || r.now().Sub(r.last) > Failsafe {
		return 0, ErrFailsafe
	}
	us := common.Clamp(float64(r.channels[ch]), 1000, 2000)
	return common.MapRange(us, 1000, 2000, 0, 180), nil
}

// Frames returns the number of good and corrupt frames seen.
func (r *IBus) Frames() (good, corrupt uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames, r.corrupt
}
