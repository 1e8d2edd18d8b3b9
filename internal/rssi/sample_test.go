package rssi

import "testing"

func TestSample_Kinds(t *testing.T) {
	var zero Sample
	if !zero.IsUnmeasured() {
		t.Errorf("Expected zero sample to be unmeasured, got %s", zero.Kind())
	}

	if !Invalid().IsInvalid() {
		t.Errorf("Expected invalid sample, got %s", Invalid().Kind())
	}

	r := Reading(-55)
	dbm, ok := r.DBm()
	if !ok || dbm != -55 {
		t.Errorf("Expected reading -55, got %d (ok=%v)", dbm, ok)
	}

	if _, ok := Invalid().DBm(); ok {
		t.Error("Expected invalid sample to carry no reading")
	}
}

func TestReading_Clamps(t *testing.T) {
	dbm, _ := Reading(20).DBm()
	if dbm != MaxReading {
		t.Errorf("Expected positive reading clamped to %d, got %d", MaxReading, dbm)
	}
}

func TestSentinels_RoundTrip(t *testing.T) {
	s := DefaultSentinels()

	tests := []struct {
		name   string
		sample Sample
		wire   int8
	}{
		{"unmeasured", Unmeasured(), 81},
		{"invalid", Invalid(), 127},
		{"reading", Reading(-73), -73},
		{"zero reading", Reading(0), 0},
		{"weakest reading", Reading(-128), -128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Encode(tt.sample); got != tt.wire {
				t.Errorf("Encode(%s) = %d, want %d", tt.sample, got, tt.wire)
			}
			if got := s.Decode(tt.wire); got != tt.sample {
				t.Errorf("Decode(%d) = %s, want %s", tt.wire, got, tt.sample)
			}
		})
	}
}

func TestSentinels_DecodeUnknownPositive(t *testing.T) {
	s := DefaultSentinels()
	if got := s.Decode(42); !got.IsInvalid() {
		t.Errorf("Expected unknown positive byte to decode as invalid, got %s", got)
	}
}

func TestSentinels_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Sentinels
		wantErr bool
	}{
		{"defaults", DefaultSentinels(), false},
		{"custom", Sentinels{Unmeasured: 100, Invalid: 101}, false},
		{"unmeasured in reading range", Sentinels{Unmeasured: -1, Invalid: 127}, true},
		{"invalid is zero", Sentinels{Unmeasured: 81, Invalid: 0}, true},
		{"equal", Sentinels{Unmeasured: 90, Invalid: 90}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
