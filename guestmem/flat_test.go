package guestmem

import (
	"strings"
	"testing"
)

func TestFlatReadWrite(t *testing.T) {
	m := NewFlat(64 * 1024)

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := m.Write(0x2000, payload); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, err := m.Read(0x2000, 4)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Read = %x, want %x", got, payload)
	}

	// Reads are copies, not views.
	got[0] = 0x00
	again, err := m.Read(0x2000, 1)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if again[0] != 0xde {
		t.Errorf("mutating a read result changed memory: got %#x", again[0])
	}
}

func TestFlatBounds(t *testing.T) {
	m := NewFlat(128)

	tests := []struct {
		name   string
		addr   uint64
		length uint32
	}{
		{"past end", 128, 1},
		{"far past end", 1 << 40, 4},
		{"length overflows", 120, 16},
		{"length wraps", 1, 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Read(tt.addr, tt.length); err == nil {
				t.Errorf("Read(%d, %d) should be out of bounds", tt.addr, tt.length)
			}
		})
	}
	if err := m.Write(128, []byte{1}); err == nil {
		t.Error("Write past the end should be out of bounds")
	}
	if err := m.Write(120, make([]byte, 16)); err == nil {
		t.Error("Write overflowing the end should be out of bounds")
	}

	// Zero-length access at the boundary is fine.
	if _, err := m.Read(128, 0); err != nil {
		t.Errorf("Read(128, 0) error: %v", err)
	}
}

func TestFlatScalars(t *testing.T) {
	m := NewFlat(4096)

	if err := m.WriteU32(16, 0x11223344); err != nil {
		t.Fatalf("WriteU32 error: %v", err)
	}
	// Little-endian layout.
	bytes, err := m.Read(16, 4)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	want := []byte{0x44, 0x33, 0x22, 0x11}
	if string(bytes) != string(want) {
		t.Errorf("WriteU32 layout = %x, want %x", bytes, want)
	}

	if err := m.WriteU8(32, 0xab); err != nil {
		t.Fatalf("WriteU8 error: %v", err)
	}
	if v, err := m.ReadU8(32); err != nil || v != 0xab {
		t.Errorf("ReadU8 = %#x, %v; want 0xab", v, err)
	}

	if err := m.WriteU16(34, 0xbeef); err != nil {
		t.Fatalf("WriteU16 error: %v", err)
	}
	if v, err := m.ReadU16(34); err != nil || v != 0xbeef {
		t.Errorf("ReadU16 = %#x, %v; want 0xbeef", v, err)
	}

	if v, err := m.ReadU32(16); err != nil || v != 0x11223344 {
		t.Errorf("ReadU32 = %#x, %v; want 0x11223344", v, err)
	}

	if err := m.WriteU64(40, 0x0102030405060708); err != nil {
		t.Fatalf("WriteU64 error: %v", err)
	}
	if v, err := m.ReadU64(40); err != nil || v != 0x0102030405060708 {
		t.Errorf("ReadU64 = %#x, %v; want 0x0102030405060708", v, err)
	}

	// Scalar access past the end fails like byte access.
	if _, err := m.ReadU32(4094); err == nil {
		t.Error("ReadU32 straddling the end should fail")
	}
	if err := m.WriteU64(4092, 1); err == nil {
		t.Error("WriteU64 straddling the end should fail")
	}
}

func TestFlatAlloc(t *testing.T) {
	m := NewFlat(64 * 1024)

	first, err := m.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	if first == 0 {
		t.Fatal("Alloc returned a zero guest pointer")
	}
	if first < flatAllocBase {
		t.Errorf("Alloc = %#x, want at least %#x (first page is reserved)", first, uint64(flatAllocBase))
	}

	// Odd size then a stricter alignment: the next address must honor it.
	if _, err := m.Alloc(3, 1); err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	aligned, err := m.Alloc(8, 8)
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	if aligned%8 != 0 {
		t.Errorf("Alloc = %#x, want 8-byte aligned", aligned)
	}

	// Zero-size allocations still get distinct addresses.
	a, err := m.Alloc(0, 1)
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	b, err := m.Alloc(0, 1)
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	if a == b {
		t.Errorf("zero-size allocations share address %#x", a)
	}

	// Free reclaims nothing and never panics.
	m.Free(a, 0, 1)
	c, err := m.Alloc(1, 1)
	if err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	if c <= b {
		t.Errorf("Alloc after Free = %#x, want bump past %#x", c, b)
	}
}

func TestFlatAllocExhaustion(t *testing.T) {
	m := NewFlat(flatAllocBase + 32)

	if _, err := m.Alloc(32, 1); err != nil {
		t.Fatalf("Alloc error: %v", err)
	}
	_, err := m.Alloc(1, 1)
	if err == nil {
		t.Fatal("Alloc should fail once the space is exhausted")
	}
	if !strings.Contains(err.Error(), "out of guest memory") {
		t.Errorf("error = %q, want out of guest memory", err)
	}

	// A space smaller than the reserved page has no allocatable room at all.
	tiny := NewFlat(64)
	if _, err := tiny.Alloc(1, 1); err == nil {
		t.Error("Alloc in a sub-page space should fail")
	}
}

func TestFlatSize(t *testing.T) {
	m := NewFlat(12345)
	if m.Size() != 12345 {
		t.Errorf("Size = %d, want 12345", m.Size())
	}
}
