package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// OutputFormat identifies the primary output kind of a job.
type OutputFormat string

const (
	OutputFormatHLS  OutputFormat = "hls"
	OutputFormatUDP  OutputFormat = "udp"
	OutputFormatRTMP OutputFormat = "rtmp"
	OutputFormatFile OutputFormat = "file"
	OutputFormatMP4  OutputFormat = "mp4"
	OutputFormatMKV  OutputFormat = "mkv"
	OutputFormatWebM OutputFormat = "webm"
	OutputFormatMOV  OutputFormat = "mov"
	OutputFormatAVI  OutputFormat = "avi"
)

// ValidOutputFormats is the set of all recognized output formats.
var ValidOutputFormats = map[OutputFormat]bool{
	OutputFormatHLS:  true,
	OutputFormatUDP:  true,
	OutputFormatRTMP: true,
	OutputFormatFile: true,
	OutputFormatMP4:  true,
	OutputFormatMKV:  true,
	OutputFormatWebM: true,
	OutputFormatMOV:  true,
	OutputFormatAVI:  true,
}

// IsFileOutput returns true for formats written to the local filesystem.
func (f OutputFormat) IsFileOutput() bool {
	switch f {
	case OutputFormatFile, OutputFormatMP4, OutputFormatMKV, OutputFormatWebM, OutputFormatMOV, OutputFormatAVI:
		return true
	default:
		return false
	}
}

// HLS playlist and segment enumerations.
const (
	PlaylistTypeLive  = "live"
	PlaylistTypeEvent = "event"
	PlaylistTypeVOD   = "vod"

	SegmentTypeMPEGTS = "mpegts"
	SegmentTypeFMP4   = "fmp4"

	// DefaultSegmentPattern names HLS segments when the user provides none.
	DefaultSegmentPattern = "segment_%03d.ts"

	// MasterPlaylistName is the fixed master playlist filename.
	MasterPlaylistName = "master.m3u8"
)

// ABR ladder bounds.
const (
	MinABRVariants = 2
	MaxABRVariants = 6
)

// streamMapPattern matches well-formed stream selectors: 0:v:0, 0:a:1, 0:s:2.
var streamMapPattern = regexp.MustCompile(`^\d+:[vas]:\d+$`)

// bitratePattern matches accepted bitrate spellings: 800k, 1.5M, 5M, 800.
var bitratePattern = regexp.MustCompile(`^\d+(\.\d+)?[kKmM]?$`)

// restrictedPathPrefixes are directories a job may never write into.
var restrictedPathPrefixes = []string{"/etc", "/usr", "/bin", "/sbin", "/dev", "/proc", "/sys"}

// ABRVariant is one rung of an adaptive bitrate ladder.
type ABRVariant struct {
	Name         string `json:"name"`
	Resolution   string `json:"resolution"`
	VideoBitrate string `json:"videoBitrate"`
	VideoCodec   string `json:"videoCodec,omitempty"`
	MaxRate      string `json:"maxRate,omitempty"`
	BufSize      string `json:"bufSize,omitempty"`
}

// StreamMap selects one input stream for the output.
type StreamMap struct {
	InputStream string `json:"inputStream"`
	OutputLabel string `json:"outputLabel,omitempty"`
}

// UnifiedConfig is the single normalized record carrying every knob an
// encoder command depends on. It is stored serialized on the owning Job
// and is the source of truth; the compiled command is a derived cache.
type UnifiedConfig struct {
	JobName  string `json:"jobName"`
	Priority int    `json:"priority,omitempty"`

	// Input
	InputFile        string `json:"inputFile"`
	InputFormat      string `json:"inputFormat,omitempty"` // device inputs (v4l2, avfoundation, ...)
	InputFramerate   string `json:"inputFramerate,omitempty"`
	InputVideoSize   string `json:"inputVideoSize,omitempty"`
	InputPixelFormat string `json:"inputPixelFormat,omitempty"`
	InputArgs        string `json:"inputArgs,omitempty"` // free-form, shell-quoted
	LoopInput        bool   `json:"loopInput,omitempty"`

	// Video
	VideoCodec   string `json:"videoCodec"`
	VideoBitrate string `json:"videoBitrate,omitempty"`
	Resolution   string `json:"resolution,omitempty"` // WxH
	FrameRate    string `json:"frameRate,omitempty"`
	Preset       string `json:"preset,omitempty"`
	Profile      string `json:"profile,omitempty"`
	Level        string `json:"level,omitempty"`
	VideoFilters string `json:"videoFilters,omitempty"`

	HardwareAccel string `json:"hardwareAccel,omitempty"` // none, nvenc, vaapi, videotoolbox

	// Audio
	AudioCodec      string  `json:"audioCodec"`
	AudioBitrate    string  `json:"audioBitrate,omitempty"`
	AudioChannels   int     `json:"audioChannels,omitempty"`
	AudioSampleRate int     `json:"audioSampleRate,omitempty"`
	AudioVolume     float64 `json:"audioVolume,omitempty"` // 1.0 = unchanged

	// Output
	OutputFormat string `json:"outputFormat"`
	OutputDir    string `json:"outputDir,omitempty"`
	OutputURL    string `json:"outputUrl,omitempty"`

	// HLS
	SegmentDuration int    `json:"segmentDuration,omitempty"` // 1..30
	PlaylistSize    int    `json:"playlistSize,omitempty"`    // 1..20
	PlaylistType    string `json:"playlistType,omitempty"`    // live, event, vod
	SegmentType     string `json:"segmentType,omitempty"`     // mpegts, fmp4
	SegmentPattern  string `json:"segmentPattern,omitempty"`

	// ABR
	ABREnabled  bool         `json:"abrEnabled,omitempty"`
	ABRVariants []ABRVariant `json:"abrVariants,omitempty"`

	// Stream selection
	StreamMaps []StreamMap `json:"streamMaps,omitempty"`

	// Auxiliary outputs mirrored from the encode.
	UDPOutputs  []string `json:"udpOutputs,omitempty"`
	RTMPOutputs []string `json:"rtmpOutputs,omitempty"`

	// CustomArgs are appended last and never override compiler flags.
	CustomArgs string `json:"customArgs,omitempty"`
}

// IsRestrictedPath reports whether p escapes or targets a system directory.
func IsRestrictedPath(p string) bool {
	if strings.Contains(p, "..") {
		return true
	}
	for _, prefix := range restrictedPathPrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// NormalizeBitrate canonicalizes a bitrate string to "<n>k" form:
// "1.5M" -> "1500k", "5M" -> "5000k", "800" -> "800k", "800K" -> "800k".
// Returns an error for spellings that are not a number with optional k/M.
func NormalizeBitrate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if !bitratePattern.MatchString(s) {
		return "", fmt.Errorf("invalid bitrate %q", s)
	}

	mult := 1.0
	num := s
	switch s[len(s)-1] {
	case 'k', 'K':
		num = s[:len(s)-1]
	case 'm', 'M':
		num = s[:len(s)-1]
		mult = 1000
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", fmt.Errorf("invalid bitrate %q: %w", s, err)
	}
	kbps := v * mult
	if kbps != math.Trunc(kbps) {
		return "", fmt.Errorf("invalid bitrate %q: fractional kilobits", s)
	}
	return strconv.FormatInt(int64(kbps), 10) + "k", nil
}

// Normalize canonicalizes the config in place: bitrates to "<n>k" form,
// codec aliases to their user-facing spelling, whitespace trimmed. Fields
// that fail to normalize are reported as problems; Validate catches the
// rest. Normalization is idempotent.
func (c *UnifiedConfig) Normalize() ProblemList {
	var problems ProblemList

	c.JobName = strings.TrimSpace(c.JobName)
	c.InputFile = strings.TrimSpace(c.InputFile)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.OutputURL = strings.TrimSpace(c.OutputURL)
	c.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))
	c.PlaylistType = strings.ToLower(strings.TrimSpace(c.PlaylistType))
	c.SegmentType = strings.ToLower(strings.TrimSpace(c.SegmentType))

	if vc, ok := ParseVideoCodec(c.VideoCodec); ok {
		c.VideoCodec = string(vc)
	}
	if ac, ok := ParseAudioCodec(c.AudioCodec); ok {
		c.AudioCodec = string(ac)
	}
	if hw, ok := ParseHWAccel(c.HardwareAccel); ok {
		if hw == HWAccelNone {
			c.HardwareAccel = ""
		} else {
			c.HardwareAccel = string(hw)
		}
	}

	normalizeRate := func(field string, v *string) {
		n, err := NormalizeBitrate(*v)
		if err != nil {
			problems = append(problems, Problem{Field: field, Message: err.Error()})
			return
		}
		*v = n
	}
	normalizeRate("videoBitrate", &c.VideoBitrate)
	normalizeRate("audioBitrate", &c.AudioBitrate)

	for i := range c.ABRVariants {
		v := &c.ABRVariants[i]
		v.Name = strings.TrimSpace(v.Name)
		v.Resolution = strings.TrimSpace(v.Resolution)
		if v.VideoCodec != "" {
			if vc, ok := ParseVideoCodec(v.VideoCodec); ok {
				v.VideoCodec = string(vc)
			}
		}
		prefix := fmt.Sprintf("abrVariants[%d].", i)
		normalizeRate(prefix+"videoBitrate", &v.VideoBitrate)
		normalizeRate(prefix+"maxRate", &v.MaxRate)
		normalizeRate(prefix+"bufSize", &v.BufSize)
	}

	return problems
}

// Validate checks the config for structural errors. It is pure: the
// receiver is not mutated. Callers normalize first.
func (c *UnifiedConfig) Validate() ProblemList {
	var problems ProblemList
	add := func(field, msg string) {
		problems = append(problems, Problem{Field: field, Message: msg})
	}

	if c.JobName == "" {
		add("jobName", "is required")
	}
	if c.InputFile == "" {
		add("inputFile", "is required")
	}
	if c.Priority != 0 && (c.Priority < 1 || c.Priority > 10) {
		add("priority", "must be between 1 and 10")
	}

	if c.VideoCodec == "" {
		add("videoCodec", "is required")
	} else if _, ok := ParseVideoCodec(c.VideoCodec); !ok {
		add("videoCodec", "unknown codec "+c.VideoCodec)
	}
	if c.AudioCodec == "" {
		add("audioCodec", "is required")
	} else if _, ok := ParseAudioCodec(c.AudioCodec); !ok {
		add("audioCodec", "unknown codec "+c.AudioCodec)
	}
	if c.HardwareAccel != "" {
		if _, ok := ParseHWAccel(c.HardwareAccel); !ok {
			add("hardwareAccel", "must be one of: none, nvenc, vaapi, videotoolbox")
		}
	}

	format := OutputFormat(c.OutputFormat)
	if c.OutputFormat == "" {
		add("outputFormat", "is required")
	} else if !ValidOutputFormats[format] {
		add("outputFormat", "unknown format "+c.OutputFormat)
	}

	// Primary destination: HLS writes a directory, everything else a URL
	// or file path. Exactly one of the two must be set.
	switch {
	case format == OutputFormatHLS:
		if c.OutputDir == "" {
			add("outputDir", "is required for hls output")
		}
		if c.OutputURL != "" {
			add("outputUrl", "must be empty for hls output")
		}
	case ValidOutputFormats[format]:
		if c.OutputURL == "" {
			add("outputUrl", "is required for "+c.OutputFormat+" output")
		}
		if c.OutputDir != "" {
			add("outputDir", "must be empty for "+c.OutputFormat+" output")
		}
	}

	if c.OutputDir != "" && IsRestrictedPath(c.OutputDir) {
		add("outputDir", "restricted path")
	}
	if format.IsFileOutput() && c.OutputURL != "" && IsRestrictedPath(c.OutputURL) {
		add("outputUrl", "restricted path")
	}

	if c.SegmentDuration != 0 && (c.SegmentDuration < 1 || c.SegmentDuration > 30) {
		add("segmentDuration", "must be between 1 and 30")
	}
	if c.PlaylistSize != 0 && (c.PlaylistSize < 1 || c.PlaylistSize > 20) {
		add("playlistSize", "must be between 1 and 20")
	}
	if c.PlaylistType != "" && c.PlaylistType != PlaylistTypeLive && c.PlaylistType != PlaylistTypeEvent && c.PlaylistType != PlaylistTypeVOD {
		add("playlistType", "must be one of: live, event, vod")
	}
	if c.SegmentType != "" && c.SegmentType != SegmentTypeMPEGTS && c.SegmentType != SegmentTypeFMP4 {
		add("segmentType", "must be one of: mpegts, fmp4")
	}

	problems = append(problems, c.validateABR()...)

	for i, m := range c.StreamMaps {
		if !streamMapPattern.MatchString(m.InputStream) {
			add(fmt.Sprintf("streamMaps[%d].inputStream", i), "must match N:[vas]:N, e.g. 0:v:0")
		}
	}

	for i, u := range c.UDPOutputs {
		if !strings.HasPrefix(u, "udp://") {
			add(fmt.Sprintf("udpOutputs[%d]", i), "must start with udp://")
		}
	}
	for i, u := range c.RTMPOutputs {
		if !strings.HasPrefix(u, "rtmp://") && !strings.HasPrefix(u, "rtmps://") {
			add(fmt.Sprintf("rtmpOutputs[%d]", i), "must start with rtmp:// or rtmps://")
		}
	}

	return problems
}

// validateABR checks the adaptive bitrate ladder invariants.
func (c *UnifiedConfig) validateABR() ProblemList {
	var problems ProblemList
	add := func(field, msg string) {
		problems = append(problems, Problem{Field: field, Message: msg})
	}

	if !c.ABREnabled {
		if len(c.ABRVariants) > 0 {
			add("abrVariants", "present but abrEnabled is false")
		}
		return problems
	}

	if OutputFormat(c.OutputFormat) != OutputFormatHLS {
		add("abrEnabled", "requires outputFormat hls")
	}
	if len(c.ABRVariants) < MinABRVariants || len(c.ABRVariants) > MaxABRVariants {
		add("abrVariants", fmt.Sprintf("ladder must have %d to %d variants", MinABRVariants, MaxABRVariants))
	}

	names := make(map[string]bool, len(c.ABRVariants))
	resolutions := make(map[string]bool, len(c.ABRVariants))
	needsFMP4 := false
	for i, v := range c.ABRVariants {
		prefix := fmt.Sprintf("abrVariants[%d].", i)
		if v.Name == "" {
			add(prefix+"name", "is required")
		} else if names[v.Name] {
			add(prefix+"name", "duplicate variant name "+v.Name)
		}
		names[v.Name] = true

		if v.Resolution == "" {
			add(prefix+"resolution", "is required")
		} else if resolutions[v.Resolution] {
			add(prefix+"resolution", "duplicate variant resolution "+v.Resolution)
		}
		resolutions[v.Resolution] = true

		codec := v.VideoCodec
		if codec == "" {
			codec = c.VideoCodec
		}
		if vc, ok := ParseVideoCodec(codec); ok {
			if vc.IsFMP4Only() {
				needsFMP4 = true
			}
		} else if v.VideoCodec != "" {
			add(prefix+"videoCodec", "unknown codec "+v.VideoCodec)
		}
	}

	if needsFMP4 && c.SegmentType != SegmentTypeFMP4 {
		add("segmentType", "must be fmp4 when a variant uses hevc or av1")
	}

	return problems
}

// Serialize encodes the config to its canonical JSON form. encoding/json
// emits struct fields in declaration order, so the output is deterministic
// for a given config value.
func (c *UnifiedConfig) Serialize() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("serializing config: %w", err)
	}
	return string(data), nil
}

// ParseUnifiedConfig decodes a serialized config.
func ParseUnifiedConfig(s string) (*UnifiedConfig, error) {
	var cfg UnifiedConfig
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
