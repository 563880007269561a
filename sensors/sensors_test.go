package sensors

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func newTestIMU(reg Registry) *IMU {
	log, _ := test.NewNullLogger()
	return NewIMU(reg, log)
}

var accelOpts = Options{ODR: 100, Scale: 16}

func TestFindFirstSuccess(t *testing.T) {
	good := &Simulated{Addr: 0x68}
	imu := newTestIMU(Registry{Accelerometers: []Descriptor{
		{Name: "good", Addrs: [2]byte{0x69, 0x68}, Driver: good},
	}})

	if !imu.FindAccelerometer(accelOpts) {
		t.Fatal("FindAccelerometer = false")
	}
	dev := imu.Device(Accelerometer)
	if dev == nil || dev.Addr != 0x68 {
		t.Fatalf("device = %+v, want address 0x68", dev)
	}
	if s, err := imu.Scale(Accelerometer); err != nil || s != 16 {
		t.Errorf("Scale = %v, %v", s, err)
	}
	if odr, err := imu.ODR(Accelerometer); err != nil || odr != 100 {
		t.Errorf("ODR = %v, %v", odr, err)
	}
	if o, _ := imu.Orientation(Accelerometer); o != Identity {
		t.Errorf("default orientation = %v", o)
	}

	imu.Close()
	creates, destroys, open := good.Counters()
	if creates != 1 || destroys != 1 || open != 0 {
		t.Errorf("after Close: creates %d destroys %d open states %d", creates, destroys, open)
	}
	if imu.Device(Accelerometer) != nil {
		t.Error("device survived Close")
	}
}

func TestFindFallsThroughFailures(t *testing.T) {
	cases := []struct {
		name string
		bad  *Simulated
	}{
		{"detect", &Simulated{Shared: "bad", Addr: 0x10}},
		{"create", &Simulated{Shared: "bad", Addr: 0x69, FailCreate: true}},
		{"scale", &Simulated{Shared: "bad", Addr: 0x69, FailScale: true}},
		{"odr", &Simulated{Shared: "bad", Addr: 0x69, FailODR: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			good := &Simulated{Addr: 0x1E}
			imu := newTestIMU(Registry{Magnetometers: []Descriptor{
				{Name: "bad", Addrs: [2]byte{0x69, NoAddr}, Driver: tc.bad},
				{Name: "good", Addrs: [2]byte{0x1E, NoAddr}, Driver: good},
			}})

			if !imu.FindMagnetometer(Options{ODR: 100, Scale: 12}) {
				t.Fatal("FindMagnetometer = false")
			}
			if imu.Device(Magnetometer).Addr != 0x1E {
				t.Errorf("found 0x%02X, want the second descriptor", imu.Device(Magnetometer).Addr)
			}

			creates, destroys, open := tc.bad.Counters()
			if open != 0 {
				t.Errorf("failed descriptor left %d open states", open)
			}
			if creates > 0 && destroys != 1 {
				t.Errorf("failed descriptor created %d destroyed %d", creates, destroys)
			}
			if imu.States() != 1 {
				t.Errorf("States = %d, want 1", imu.States())
			}
		})
	}
}

func TestFindExhausted(t *testing.T) {
	a := &Simulated{Shared: "a", Addr: 0x69, FailCreate: true}
	b := &Simulated{Shared: "b", Addr: NoAddr}
	imu := newTestIMU(Registry{Gyroscopes: []Descriptor{
		{Name: "a", Addrs: [2]byte{0x69, 0x68}, Driver: a},
		{Name: "b", Addrs: [2]byte{NoAddr, NoAddr}, Driver: b},
	}})

	if imu.FindGyroscope(Options{ODR: 100, Scale: 2000}) {
		t.Fatal("FindGyroscope = true with no working descriptor")
	}
	if imu.Device(Gyroscope) != nil {
		t.Error("device present after failed detection")
	}
	if imu.States() != 0 {
		t.Errorf("States = %d, want 0", imu.States())
	}
	for _, d := range []*Simulated{a, b} {
		if _, _, open := d.Counters(); open != 0 {
			t.Errorf("%s left %d open states", d.Shared, open)
		}
	}
	if _, err := imu.ReadGyroscope(); !errors.Is(err, ErrAbsent) {
		t.Errorf("ReadGyroscope err = %v, want ErrAbsent", err)
	}
}

func TestFindStateFailureAborts(t *testing.T) {
	broken := &Simulated{Shared: "broken", Addr: 0x69, FailState: true}
	good := &Simulated{Addr: 0x69}
	imu := newTestIMU(Registry{Accelerometers: []Descriptor{
		{Name: "broken", Addrs: [2]byte{0x69, NoAddr}, Driver: broken},
		{Name: "good", Addrs: [2]byte{0x69, NoAddr}, Driver: good},
	}})

	if imu.FindAccelerometer(accelOpts) {
		t.Fatal("FindAccelerometer = true after state allocation failure")
	}
	if creates, _, _ := good.Counters(); creates != 0 {
		t.Error("detection continued after state allocation failure")
	}
}

func TestSharedStateOutlivesOneCategory(t *testing.T) {
	sim, reg := NewSimAircraft()
	imu := newTestIMU(reg)
	if !imu.FindAccelerometer(accelOpts) || !imu.FindGyroscope(Options{ODR: 100, Scale: 2000}) {
		t.Fatal("simulated aircraft not found")
	}
	if imu.States() != 1 {
		t.Fatalf("States = %d, want one shared state", imu.States())
	}

	// A failing magnetometer must not free the state the others use.
	sim.Mag.FailCreate = true
	if imu.FindMagnetometer(Options{ODR: 100, Scale: 12}) {
		t.Fatal("FindMagnetometer = true")
	}
	if imu.States() != 1 {
		t.Errorf("States = %d after magnetometer failure", imu.States())
	}
	if _, err := imu.ReadAccelerometer(); err != nil {
		t.Errorf("ReadAccelerometer: %v", err)
	}

	imu.Close()
	if _, _, open := sim.Accel.Counters(); open != 0 {
		t.Errorf("open states after Close = %d", open)
	}
}

func TestCalibratedReads(t *testing.T) {
	sim, reg := NewSimAircraft()
	imu := newTestIMU(reg)
	if !imu.FindAccelerometer(accelOpts) || !imu.FindGyroscope(Options{ODR: 100, Scale: 2000}) {
		t.Fatal("simulated aircraft not found")
	}

	if err := imu.SetOffsets(Accelerometer, [3]float64{0.1, -0.2, 0.25}); err != nil {
		t.Fatal(err)
	}
	a, err := imu.ReadAccelerometer()
	if err != nil {
		t.Fatal(err)
	}
	if want := [3]float64{0.1, -0.2, 1.25}; a != want {
		t.Errorf("accel = %v, want %v", a, want)
	}

	lsb := 2000.0 / 32768
	quant := func(v float64) float64 { return math.Round(v/lsb) * lsb }
	sim.Gyro.SetSample([3]float64{10, -5, 3})
	if err := imu.SetOrientation(Gyroscope, [9]float64{0, 1, 0, 1, 0, 0, 0, 0, -1}); err != nil {
		t.Fatal(err)
	}
	if err := imu.SetOffsets(Gyroscope, [3]float64{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	g, err := imu.ReadGyroscope()
	if err != nil {
		t.Fatal(err)
	}
	want := [3]float64{quant(-5) + 1, quant(10), -quant(3)}
	for i := range g {
		if math.Abs(g[i]-want[i]) > 1e-12 {
			t.Errorf("gyro[%d] = %v, want %v", i, g[i], want[i])
		}
	}
	if off, _ := imu.Offsets(Gyroscope); off != [3]float64{1, 0, 0} {
		t.Errorf("Offsets = %v", off)
	}
}

func TestAccessorErrors(t *testing.T) {
	sim, reg := NewSimAircraft()
	imu := newTestIMU(reg)

	if err := imu.SetScale(Magnetometer, 12); !errors.Is(err, ErrAbsent) {
		t.Errorf("SetScale on absent = %v, want ErrAbsent", err)
	}
	if _, err := imu.ODR(Category(7)); !errors.Is(err, ErrAbsent) {
		t.Errorf("ODR on unknown category = %v, want ErrAbsent", err)
	}

	if !imu.FindAccelerometer(accelOpts) {
		t.Fatal("FindAccelerometer = false")
	}
	sim.Accel.FailODR = true
	if _, err := imu.ODR(Accelerometer); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ODR = %v, want ErrUnsupported", err)
	}
	if err := imu.SetScale(Accelerometer, -1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetScale(-1) = %v, want ErrUnsupported", err)
	}
}

func TestReadTimeout(t *testing.T) {
	sim, reg := NewSimAircraft()
	imu := newTestIMU(reg)
	if !imu.FindAccelerometer(accelOpts) {
		t.Fatal("FindAccelerometer = false")
	}
	sim.Accel.ReadDelay = DriverTimeout + time.Millisecond
	if _, err := imu.ReadAccelerometer(); !errors.Is(err, ErrTimeout) {
		t.Errorf("ReadAccelerometer = %v, want ErrTimeout", err)
	}
}

func TestToRawSaturates(t *testing.T) {
	if r := toRaw(1e9, 1); r != math.MaxInt16 {
		t.Errorf("toRaw(+big) = %d", r)
	}
	if r := toRaw(-1e9, 1); r != math.MinInt16 {
		t.Errorf("toRaw(-big) = %d", r)
	}
}
