// Package compiler translates a validated UnifiedConfig into an encoder
// argv, an output plan, and a set of warnings. Compilation is pure:
// identical inputs yield byte-identical argv.
package compiler

import (
	"github.com/jmylchreest/encodarr/internal/models"
)

// Environment carries the compile-time facts about the host: which
// hardware encoder pairings are usable, where output artifacts land,
// and the public URL root for HLS playback.
type Environment struct {
	// HLSBaseDir is the root directory for HLS output (e.g. /output/hls).
	HLSBaseDir string

	// FileBaseDir is the root directory for file output (e.g. /output/files).
	FileBaseDir string

	// HLSBaseURL is the public URL root mapped onto HLSBaseDir. Empty
	// means no public URL is derivable.
	HLSBaseURL string

	// DefaultSegmentDuration is the HLS segment length in seconds used
	// when the config leaves it unset. Zero means the built-in default.
	DefaultSegmentDuration int

	// Hardware is the usable {accel, codec} inventory. A nil map means
	// every pairing in the static encoder table is assumed usable.
	Hardware map[models.HWAccelType]map[models.VideoCodec]bool
}

// Supports reports whether the given accelerator/codec pairing is
// usable in this environment. The static encoder table bounds the
// answer: a pairing with no encoder name is never supported.
func (e Environment) Supports(hw models.HWAccelType, codec models.VideoCodec) bool {
	if _, ok := codec.HardwareEncoder(hw); !ok {
		return false
	}
	if e.Hardware == nil {
		return true
	}
	return e.Hardware[hw][codec]
}
