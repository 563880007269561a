package receiver

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/b3nn0/fbw/config"
)

func frame(us ...uint16) []byte {
	p := make([]byte, ibusPacketSize)
	p[0], p[1] = ibusHeader1, ibusHeader2
	for i := 0; i < ibusChannels; i++ {
		v := uint16(1500)
		if i < len(us) {
			v = us[i]
		}
		p[2+2*i] = byte(v)
		p[3+2*i] = byte(v >> 8)
	}
	sum := uint16(0xFFFF)
	for _, b := range p[:30] {
		sum -= uint16(b)
	}
	p[30], p[31] = byte(sum), byte(sum>>8)
	return p
}

func newIBus(t *testing.T) (*IBus, *time.Time) {
	t.Helper()
	log, _ := test.NewNullLogger()
	r := NewIBus("/dev/null", 115200, log)
	now := time.Unix(100, 0)
	r.now = func() time.Time { return now }
	return r, &now
}

func TestIBusDecode(t *testing.T) {
	r, _ := newIBus(t)
	if _, err := r.Get(Roll); !errors.Is(err, ErrFailsafe) {
		t.Fatalf("Get before any frame = %v", err)
	}

	stream := append([]byte{0x00, 0x20, 0x13, 0x55}, frame(1000, 2000, 1250, 1500, 900)...)
	if err := r.read(bytes.NewReader(stream)); !errors.Is(err, io.EOF) {
		t.Fatalf("read = %v", err)
	}
	if good, corrupt := r.Frames(); good != 1 || corrupt != 0 {
		t.Fatalf("frames good %d corrupt %d", good, corrupt)
	}
	for ch, want := range map[Channel]float64{Roll: 0, Pitch: 180, Throttle: 45, Yaw: 90, Switch: 0} {
		got, err := r.Get(ch)
		if err != nil || got != want {
			t.Errorf("%s = %v, %v; want %v", ch, got, err, want)
		}
	}
	if _, err := r.Get(Channel(14)); !errors.Is(err, ErrNoChannel) {
		t.Errorf("Get(14) = %v", err)
	}
}

func TestIBusCorruptFrame(t *testing.T) {
	r, _ := newIBus(t)
	bad := frame(1000)
	bad[5] ^= 0xFF
	for _, b := range bad {
		if r.feed(b) {
			t.Fatal("corrupt frame decoded")
		}
	}
	good := frame(2000)
	decoded := false
	for _, b := range good {
		decoded = r.feed(b)
	}
	if !decoded {
		t.Fatal("good frame after a corrupt one not decoded")
	}
	if g, c := r.Frames(); g != 1 || c != 1 {
		t.Errorf("frames good %d corrupt %d", g, c)
	}
	if v, _ := r.Get(Roll); v != 180 {
		t.Errorf("roll %v, want 180", v)
	}
}

func TestIBusFailsafe(t *testing.T) {
	r, now := newIBus(t)
	for _, b := range frame() {
		r.feed(b)
	}
	*now = now.Add(Failsafe)
	if _, err := r.Get(Roll); err != nil {
		t.Errorf("Get at the failsafe limit = %v", err)
	}
	*now = now.Add(time.Millisecond)
	if _, err := r.Get(Roll); !errors.Is(err, ErrFailsafe) {
		t.Errorf("Get after failsafe = %v", err)
	}
}

func TestSwitchPosition(t *testing.T) {
	tests := []struct {
		deg  float64
		t    config.SwitchType
		want Position
	}{
		{0, config.SwitchType2Pos, PositionLow},
		{89.9, config.SwitchType2Pos, PositionLow},
		{90, config.SwitchType2Pos, PositionHigh},
		{180, config.SwitchType2Pos, PositionHigh},
		{44, config.SwitchType3Pos, PositionLow},
		{45, config.SwitchType3Pos, PositionMid},
		{135, config.SwitchType3Pos, PositionMid},
		{136, config.SwitchType3Pos, PositionHigh},
	}
	for _, tc := range tests {
		if got := SwitchPosition(tc.deg, tc.t); got != tc.want {
			t.Errorf("SwitchPosition(%v, %d) = %s, want %s", tc.deg, tc.t, got, tc.want)
		}
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	if v, err := s.Get(Yaw); err != nil || v != 90 {
		t.Errorf("unset channel = %v, %v", v, err)
	}
	s.Set(Roll, 120)
	if v, _ := s.Get(Roll); v != 120 {
		t.Errorf("roll %v", v)
	}
	s.SetErr(ErrFailsafe)
	if _, err := s.Get(Roll); !errors.Is(err, ErrFailsafe) {
		t.Errorf("Get with error = %v", err)
	}
}
