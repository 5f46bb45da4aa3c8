package advert

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/vitaminmoo/gattprov/internal/uuidgen"
)

func TestDefaultPayload(t *testing.T) {
	base := uuidgen.MustParse("367ec074-9a6c-11ea-8ad0-377f1627427f")
	got, err := Default(base, 0x0006, 0x0010).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x02, 0x01, 0x06,
		0x11, 0x07,
		0x7f, 0x42, 0x27, 0x16, 0x7f, 0x37, 0xd0, 0x8a, 0xea, 0x11, 0x6c, 0x9a, 0x74, 0xc0, 0x7e, 0x36,
		0x05, 0x12, 0x06, 0x00, 0x10, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("payload\n got % x\nwant % x", got, want)
	}
}

func TestPayloadWithName(t *testing.T) {
	d := Default(uuidgen.UUID{}, 0, 0)
	d.IncludeName = true
	d.Name = "TESTER"
	got, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	name := []byte{0x07, TypeCompleteName, 'T', 'E', 'S', 'T', 'E', 'R'}
	if !bytes.Equal(got[3:3+len(name)], name) {
		t.Errorf("name field = % x, want % x", got[3:3+len(name)], name)
	}
}

func TestPayloadTooLong(t *testing.T) {
	d := Default(uuidgen.UUID{}, 0x0006, 0x0010)
	d.IncludeName = true
	d.Name = "a rather long device name"
	if _, err := d.Bytes(); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Bytes() error = %v, want ErrTooLong", err)
	}
}

func TestIntervalOrder(t *testing.T) {
	if _, err := Default(uuidgen.UUID{}, 0x20, 0x10).Bytes(); err == nil {
		t.Fatal("expected error for min above max")
	}
}

func TestIntervalDuration(t *testing.T) {
	if got := IntervalDuration(0x0006); got != 7500*time.Microsecond {
		t.Errorf("IntervalDuration(6) = %v", got)
	}
	if got := IntervalDuration(0x0010); got != 20*time.Millisecond {
		t.Errorf("IntervalDuration(16) = %v", got)
	}
}
