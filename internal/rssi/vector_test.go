package rssi

import "testing"

func TestVector_Sealed(t *testing.T) {
	v := Vector{Reading(-40), Unmeasured(), Invalid()}
	sealed := v.Sealed()

	if !sealed.Complete() {
		t.Errorf("Expected sealed vector to be complete: %s", sealed)
	}
	if sealed.Count(KindInvalid) != 2 {
		t.Errorf("Expected 2 invalid slots, got %d", sealed.Count(KindInvalid))
	}
	if !v[1].IsUnmeasured() {
		t.Error("Sealed must not modify the receiver")
	}
}

func TestVector_EncodeDecode(t *testing.T) {
	s := DefaultSentinels()
	v := Vector{Reading(-40), Unmeasured(), Invalid(), Reading(-1)}

	raw := v.Encode(s)
	want := []int8{-40, 81, 127, -1}
	for i := range want {
		if raw[i] != want[i] {
			t.Errorf("Encode slot %d = %d, want %d", i, raw[i], want[i])
		}
	}

	back := DecodeVector(raw, s)
	for i := range v {
		if back[i] != v[i] {
			t.Errorf("Decode slot %d = %s, want %s", i, back[i], v[i])
		}
	}
}

func TestVector_String(t *testing.T) {
	v := Vector{Reading(-40), Unmeasured(), Invalid()}
	if got, want := v.String(), "[-40dBm unmeasured invalid]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestChannelFrequency(t *testing.T) {
	tests := []struct {
		ch   uint8
		want float64
	}{
		{11, 2_405_000_000},
		{15, 2_425_000_000},
		{26, 2_480_000_000},
		{10, 0},
		{27, 0},
	}

	for _, tt := range tests {
		if got := ChannelFrequency(tt.ch); got != tt.want {
			t.Errorf("ChannelFrequency(%d) = %f, want %f", tt.ch, got, tt.want)
		}
	}

	if got := FormatFrequency(26); got != "2.480 GHz" {
		t.Errorf("FormatFrequency(26) = %q", got)
	}
}
