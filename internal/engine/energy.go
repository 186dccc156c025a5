package engine

// Profile classifies hours of day into energy tiers from user settings.
// It is pure and carries no state beyond the configured windows.
type Profile struct {
	high   *HourRange
	medium *HourRange
	low    *HourRange
}

func NewProfile(set Settings) Profile {
	return Profile{high: set.HighEnergy, medium: set.MediumEnergy, low: set.LowEnergy}
}

// TierAt returns the configured tier containing hour, or TierNone when no
// window covers it. Windows may overlap through misconfiguration; the lookup
// resolves high over medium over low so the behavior is deterministic rather
// than silently arbitrary.
func (p Profile) TierAt(hour int) EnergyTier {
	if p.high != nil && p.high.Contains(hour) {
		return TierHigh
	}
	if p.medium != nil && p.medium.Contains(hour) {
		return TierMedium
	}
	if p.low != nil && p.low.Contains(hour) {
		return TierLow
	}
	return TierNone
}
