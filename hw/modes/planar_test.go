package modes

import "testing"

func TestSpread8(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0x00, 0x00000000},
		{0x01, 0x00000001},
		{0x80, 0x10000000},
		{0xFF, 0x11111111},
		{0xA5, 0x10100101},
		{0x0F, 0x00001111},
	}
	for _, tt := range tests {
		if got := Spread8(tt.in); got != tt.want {
			t.Errorf("Spread8(%02x) = %08x, want %08x", tt.in, got, tt.want)
		}
	}
}

func TestPackPlanes(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0x00000000, 0x00000000},
		{0x000000FF, 0x11111111}, // plane 0 only: colour 1 everywhere
		{0x0000FF00, 0x22222222},
		{0x00FF0000, 0x44444444},
		{0xFF000000, 0x88888888},
		{0xFFFFFFFF, 0xFFFFFFFF},
		{0x80402010, 0x84210000},
		{0x00000080, 0x10000000}, // leftmost pixel in the top nibble
	}
	for _, tt := range tests {
		if got := PackPlanes(tt.in); got != tt.want {
			t.Errorf("PackPlanes(%08x) = %08x, want %08x", tt.in, got, tt.want)
		}
	}
}

func TestPackPlanesMatchesGather(t *testing.T) {
	w := uint32(0x12345678)
	for range 10000 {
		w = w*1664525 + 1013904223
		if got, want := PackPlanes(w), gatherPlanes(w); got != want {
			t.Fatalf("PackPlanes(%08x) = %08x, want %08x", w, got, want)
		}
	}
}
