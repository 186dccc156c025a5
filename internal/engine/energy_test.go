package engine

import "testing"

func TestTierAt(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.HighEnergy = &HourRange{Start: 9, End: 12}
	set.MediumEnergy = &HourRange{Start: 12, End: 15}
	set.LowEnergy = &HourRange{Start: 15, End: 17}
	p := NewProfile(set)

	tests := []struct {
		hour int
		want EnergyTier
	}{
		{8, TierNone},
		{9, TierHigh},
		{11, TierHigh},
		{12, TierMedium},
		{14, TierMedium},
		{15, TierLow},
		{16, TierLow},
		{17, TierNone},
		{23, TierNone},
	}
	for _, tt := range tests {
		if got := p.TierAt(tt.hour); got != tt.want {
			t.Fatalf("TierAt(%d) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestTierAtOverlapPrecedence(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.HighEnergy = &HourRange{Start: 9, End: 12}
	set.MediumEnergy = &HourRange{Start: 9, End: 14}
	set.LowEnergy = &HourRange{Start: 9, End: 17}
	p := NewProfile(set)

	if got := p.TierAt(10); got != TierHigh {
		t.Fatalf("TierAt(10) = %v, want high (precedence)", got)
	}
	if got := p.TierAt(13); got != TierMedium {
		t.Fatalf("TierAt(13) = %v, want medium (precedence)", got)
	}
	if got := p.TierAt(16); got != TierLow {
		t.Fatalf("TierAt(16) = %v, want low", got)
	}
}

func TestTierAtNoWindows(t *testing.T) {
	t.Parallel()
	p := NewProfile(testSettings())
	for h := 0; h < 24; h++ {
		if got := p.TierAt(h); got != TierNone {
			t.Fatalf("TierAt(%d) = %v, want none", h, got)
		}
	}
}
