package pavolmon

const (
	// VolumeMuted is the floor of the server's native volume scale
	VolumeMuted uint32 = 0

	// VolumeNorm is the native volume that corresponds to 100%
	VolumeNorm uint32 = 0x10000

	// MaxDisplayVolume bounds the printed percentage, since volumes above VolumeNorm are allowed
	MaxDisplayVolume = 999
)

// VolumeState is the last known volume and mute flag of one device
type VolumeState struct {
	Volume uint32
	Muted  bool
}

// Percent returns the volume normalized to 0-100
func (v VolumeState) Percent() int {
	return NormalizeVolume(v.Volume)
}

// NormalizeVolume maps a native volume linearly onto 0-100, rounding to the
// nearest integer and clamping to MaxDisplayVolume
func NormalizeVolume(volume uint32) int {
	if volume <= VolumeMuted {
		return 0
	}

	const volumeRange = float64(VolumeNorm - VolumeMuted)

	p := (float64(volume-VolumeMuted)/volumeRange)*100.0 + 0.5
	if p >= MaxDisplayVolume {
		return MaxDisplayVolume
	}

	return int(p)
}
