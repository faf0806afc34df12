package domain

// QualityProfile bundles the resolution, frame rate and bitrate applied to a
// single capture track. Profiles are immutable values; a running track swaps
// the whole profile rather than mutating fields.
type QualityProfile struct {
	Name        string
	Width       int
	Height      int
	FrameRate   int
	BitrateKbps int
}

// LowProfile is tuned for grid views with many concurrent streams.
func LowProfile() QualityProfile {
	return QualityProfile{Name: "low", Width: 854, Height: 480, FrameRate: 5, BitrateKbps: 500}
}

// HighProfile is full HD for a focused single-viewer session.
func HighProfile() QualityProfile {
	return QualityProfile{Name: "high", Width: 1920, Height: 1080, FrameRate: 30, BitrateKbps: 3000}
}

// ProfileFromName resolves a quality label. Only the literal "high" selects
// the high profile; every other name, including unrecognized ones, degrades
// to low.
func ProfileFromName(name string) QualityProfile {
	if name == "high" {
		return HighProfile()
	}
	return LowProfile()
}

// CustomProfile builds an ad-hoc profile from explicit dimensions. Callers
// must supply all four values; partial custom settings fall back to a named
// profile instead.
func CustomProfile(width, height, frameRate, bitrateKbps int) QualityProfile {
	return QualityProfile{
		Name:        "custom",
		Width:       width,
		Height:      height,
		FrameRate:   frameRate,
		BitrateKbps: bitrateKbps,
	}
}
