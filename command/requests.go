package command

import (
	"math"

	"github.com/justapithecus/mk0link/types"
)

// Bool returns a pointer to v, for optional request fields.
func Bool(v bool) *bool {
	return &v
}

// ClampVolume bounds v to [0.0, 1.0]. NaN becomes 0.
func ClampVolume(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ConfigureRecording builds a recording request. A nil enable sends an
// empty configuration.
func ConfigureRecording(enable *bool) types.ConfigureRecording {
	return types.ConfigureRecording{Enable: enable}
}

// ConfigurePlayback builds a playback request with volume clamped.
func ConfigurePlayback(enable *bool, volume *float32) types.ConfigurePlayback {
	if volume != nil {
		v := ClampVolume(*volume)
		volume = &v
	}
	return types.ConfigurePlayback{Enable: enable, Volume: volume}
}

// SetVolume builds a playback request carrying only the volume.
func SetVolume(volume float32) types.ConfigurePlayback {
	return ConfigurePlayback(nil, &volume)
}

// Reset builds a soft reset request.
func Reset() types.Reset {
	return types.Reset{}
}

// normalize applies request invariants regardless of how the request was built.
func normalize(req types.Request) types.Request {
	switch r := req.(type) {
	case types.ConfigurePlayback:
		return ConfigurePlayback(r.Enable, r.Volume)
	case *types.ConfigurePlayback:
		if r != nil {
			return ConfigurePlayback(r.Enable, r.Volume)
		}
	case *types.ConfigureRecording:
		if r != nil {
			return *r
		}
	case *types.Reset:
		if r != nil {
			return *r
		}
	}
	return req
}
