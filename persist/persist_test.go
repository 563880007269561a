package persist

import (
	"path/filepath"
	"testing"
)

func sampleRecord() Record {
	r := NewRecord()
	r[0] = 1
	r[1] = -0.0123
	r[2] = 42.5
	r[14] = 7
	return r
}

func testStore(t *testing.T, s Store) {
	if _, ok := s.Load(KeyCalibration); ok {
		t.Fatal("empty store reported a record")
	}

	// A record without the magic reads as never written.
	var raw Record
	raw[0] = 5
	s.Put(KeyTune, raw)
	if _, ok := s.Load(KeyTune); ok {
		t.Error("record without end magic reported as written")
	}

	want := sampleRecord()
	s.Put(KeyCalibration, want)
	got, ok := s.Load(KeyCalibration)
	if !ok {
		t.Fatal("staged record not visible")
	}
	if got != want {
		t.Errorf("Load = %v, want %v", got, want)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	testStore(t, m)
	if m.Saves() != 1 {
		t.Errorf("Saves = %d, want 1", m.Saves())
	}
	if r, ok := m.Committed(KeyCalibration); !ok || r != sampleRecord() {
		t.Errorf("Committed = %v, %v", r, ok)
	}

	m.Put(Key(7), NewRecord())
	if _, ok := m.Committed(Key(7)); ok {
		t.Error("unsaved record reported as committed")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbw.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	testStore(t, s)

	// Staged but never saved.
	lost := NewRecord()
	lost[0] = 99
	s.Put(Key(7), lost)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, ok := s.Load(KeyCalibration)
	if !ok || got != sampleRecord() {
		t.Errorf("reloaded record = %v, %v; want %v", got, ok, sampleRecord())
	}
	if _, ok := s.Load(Key(7)); ok {
		t.Error("unsaved record survived reopen")
	}
}

func TestKeyString(t *testing.T) {
	if KeyCalibration.String() != "calibration" {
		t.Errorf("KeyCalibration = %q", KeyCalibration.String())
	}
	if Key(42).String() != "key(42)" {
		t.Errorf("Key(42) = %q", Key(42).String())
	}
}
