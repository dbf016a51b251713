package models

import "strings"

// VideoCodec is the user-facing video codec identifier stored on configs.
// Encoder names (libx264, hevc_nvenc, ...) are derived at compile time.
type VideoCodec string

const (
	VideoCodecH264 VideoCodec = "h264" // H.264/AVC
	VideoCodecH265 VideoCodec = "h265" // H.265/HEVC
	VideoCodecVP9  VideoCodec = "vp9"  // VP9 (fMP4 only)
	VideoCodecAV1  VideoCodec = "av1"  // AV1 (fMP4 only)
	VideoCodecCopy VideoCodec = "copy" // passthrough
)

// AudioCodec is the user-facing audio codec identifier.
type AudioCodec string

const (
	AudioCodecAAC  AudioCodec = "aac"
	AudioCodecMP3  AudioCodec = "mp3"
	AudioCodecAC3  AudioCodec = "ac3"
	AudioCodecOpus AudioCodec = "opus" // fMP4 only
	AudioCodecCopy AudioCodec = "copy" // passthrough
)

// HWAccelType represents hardware acceleration type.
type HWAccelType string

const (
	HWAccelNone  HWAccelType = "none"         // Software only
	HWAccelNVENC HWAccelType = "nvenc"        // NVIDIA NVENC
	HWAccelVAAPI HWAccelType = "vaapi"        // Linux VA-API
	HWAccelVT    HWAccelType = "videotoolbox" // macOS
)

// softwareVideoEncoders maps user-facing codecs to software encoder names.
var softwareVideoEncoders = map[VideoCodec]string{
	VideoCodecH264: "libx264",
	VideoCodecH265: "libx265",
	VideoCodecVP9:  "libvpx-vp9",
	VideoCodecAV1:  "libaom-av1",
	VideoCodecCopy: "copy",
}

// hardwareVideoEncoders maps {accel, codec} pairs to encoder names.
// Missing cells fall back to the software encoder with a compile warning.
var hardwareVideoEncoders = map[HWAccelType]map[VideoCodec]string{
	HWAccelNVENC: {
		VideoCodecH264: "h264_nvenc",
		VideoCodecH265: "hevc_nvenc",
		VideoCodecAV1:  "av1_nvenc",
	},
	HWAccelVAAPI: {
		VideoCodecH264: "h264_vaapi",
		VideoCodecH265: "hevc_vaapi",
		VideoCodecAV1:  "av1_vaapi",
	},
	HWAccelVT: {
		VideoCodecH264: "h264_videotoolbox",
		VideoCodecH265: "hevc_videotoolbox",
	},
}

// audioEncoders maps user-facing audio codecs to encoder names.
var audioEncoders = map[AudioCodec]string{
	AudioCodecAAC:  "aac",
	AudioCodecMP3:  "libmp3lame",
	AudioCodecAC3:  "ac3",
	AudioCodecOpus: "libopus",
	AudioCodecCopy: "copy",
}

// Encoder returns the software encoder name for this codec.
func (c VideoCodec) Encoder() string {
	if enc, ok := softwareVideoEncoders[c]; ok {
		return enc
	}
	return string(c)
}

// HardwareEncoder returns the encoder name for this codec on the given
// accelerator and whether that pairing exists.
func (c VideoCodec) HardwareEncoder(hw HWAccelType) (string, bool) {
	table, ok := hardwareVideoEncoders[hw]
	if !ok {
		return "", false
	}
	enc, ok := table[c]
	return enc, ok
}

// IsFMP4Only returns true if this codec requires the fMP4 container.
func (c VideoCodec) IsFMP4Only() bool {
	return c == VideoCodecH265 || c == VideoCodecAV1
}

// Encoder returns the encoder name for this audio codec.
func (c AudioCodec) Encoder() string {
	if enc, ok := audioEncoders[c]; ok {
		return enc
	}
	return string(c)
}

// IsFMP4Only returns true if this codec requires the fMP4 container.
func (c AudioCodec) IsFMP4Only() bool {
	return c == AudioCodecOpus
}

// videoCodecAliases maps accepted input spellings to canonical codecs.
var videoCodecAliases = map[string]VideoCodec{
	"h264":       VideoCodecH264,
	"avc":        VideoCodecH264,
	"libx264":    VideoCodecH264,
	"h265":       VideoCodecH265,
	"hevc":       VideoCodecH265,
	"libx265":    VideoCodecH265,
	"vp9":        VideoCodecVP9,
	"libvpx-vp9": VideoCodecVP9,
	"av1":        VideoCodecAV1,
	"libaom-av1": VideoCodecAV1,
	"copy":       VideoCodecCopy,
}

// audioCodecAliases maps accepted input spellings to canonical codecs.
var audioCodecAliases = map[string]AudioCodec{
	"aac":        AudioCodecAAC,
	"mp3":        AudioCodecMP3,
	"libmp3lame": AudioCodecMP3,
	"ac3":        AudioCodecAC3,
	"opus":       AudioCodecOpus,
	"libopus":    AudioCodecOpus,
	"copy":       AudioCodecCopy,
}

// ParseVideoCodec parses a string to a VideoCodec, handling common aliases
// (e.g. "hevc" and "libx265" both map to h265).
func ParseVideoCodec(s string) (VideoCodec, bool) {
	c, ok := videoCodecAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// ParseAudioCodec parses a string to an AudioCodec, handling aliases.
func ParseAudioCodec(s string) (AudioCodec, bool) {
	c, ok := audioCodecAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// ParseHWAccel parses a string to a HWAccelType.
func ParseHWAccel(s string) (HWAccelType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return HWAccelNone, true
	case "nvenc", "cuda":
		return HWAccelNVENC, true
	case "vaapi":
		return HWAccelVAAPI, true
	case "videotoolbox", "vt":
		return HWAccelVT, true
	default:
		return "", false
	}
}
