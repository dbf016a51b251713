package compiler

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/encodarr/internal/models"
)

// HLS defaults applied when the config leaves a knob unset.
const (
	defaultSegmentDuration = 6
	defaultPlaylistSize    = 10
)

// Compile translates a UnifiedConfig into an encoder argv, an output
// plan, and warnings. The input config is not mutated; a normalized
// copy drives assembly so that bitrates and codec aliases land in
// canonical form regardless of the caller's spelling. Invalid configs
// return a ProblemList error and no result.
func Compile(cfg *models.UnifiedConfig, env Environment) (*Result, error) {
	c := *cfg
	c.ABRVariants = append([]models.ABRVariant(nil), cfg.ABRVariants...)
	c.StreamMaps = append([]models.StreamMap(nil), cfg.StreamMaps...)
	c.UDPOutputs = append([]string(nil), cfg.UDPOutputs...)
	c.RTMPOutputs = append([]string(nil), cfg.RTMPOutputs...)

	if problems := c.Normalize(); len(problems) > 0 {
		return nil, problems
	}
	if problems := c.Validate(); len(problems) > 0 {
		return nil, problems
	}

	b := &builder{cfg: &c, env: env}
	b.assemble()

	return &Result{
		Args:     b.args,
		Plan:     b.plan(),
		Warnings: b.warnings,
	}, nil
}

// builder accumulates argv sections in the fixed assembly order.
type builder struct {
	cfg      *models.UnifiedConfig
	env      Environment
	args     []string
	warnings []Warning

	// videoEncoder is resolved once so the hwaccel input flags and the
	// codec option agree on hardware vs software.
	videoEncoder string
	usedHardware models.HWAccelType
}

func (b *builder) add(args ...string) {
	b.args = append(b.args, args...)
}

func (b *builder) warn(code WarningCode, format string, a ...interface{}) {
	b.warnings = append(b.warnings, Warning{Code: code, Message: fmt.Sprintf(format, a...)})
}

// assemble builds the argv in its fixed order: binary, hwaccel input
// flags, loop flags, input format, input aux args, -i, maps, video,
// audio, output block, auxiliary outputs, custom args.
func (b *builder) assemble() {
	cfg := b.cfg

	b.resolveVideoEncoder()

	b.add("ffmpeg")
	b.hwaccelInputFlags()

	if cfg.LoopInput {
		b.add("-stream_loop", "-1", "-re")
	}
	if cfg.InputFormat != "" {
		b.add("-f", cfg.InputFormat)
	}
	if cfg.InputFramerate != "" {
		b.add("-framerate", cfg.InputFramerate)
	}
	if cfg.InputVideoSize != "" {
		b.add("-video_size", cfg.InputVideoSize)
	}
	if cfg.InputPixelFormat != "" {
		b.add("-pixel_format", cfg.InputPixelFormat)
	}
	if cfg.InputArgs != "" {
		b.add(SplitArgs(cfg.InputArgs)...)
	}

	b.add("-i", cfg.InputFile)

	for _, m := range cfg.StreamMaps {
		b.add("-map", m.InputStream)
	}

	if b.isABR() {
		b.abrOutput()
	} else {
		b.videoArgs()
		b.audioArgs()
		b.primaryOutput()
	}

	for _, u := range cfg.UDPOutputs {
		b.add("-f", "mpegts", u)
	}
	for _, u := range cfg.RTMPOutputs {
		b.add("-f", "flv", u)
	}

	if cfg.CustomArgs != "" {
		b.add(SplitArgs(cfg.CustomArgs)...)
	}
}

func (b *builder) isABR() bool {
	return b.cfg.ABREnabled && models.OutputFormat(b.cfg.OutputFormat) == models.OutputFormatHLS
}

// resolveVideoEncoder picks the hardware encoder when the requested
// pairing is usable, otherwise falls back to software with a warning.
func (b *builder) resolveVideoEncoder() {
	codec, _ := models.ParseVideoCodec(b.cfg.VideoCodec)
	b.videoEncoder = codec.Encoder()
	b.usedHardware = models.HWAccelNone

	if b.cfg.HardwareAccel == "" || codec == models.VideoCodecCopy {
		return
	}

	hw, _ := models.ParseHWAccel(b.cfg.HardwareAccel)
	if b.env.Supports(hw, codec) {
		enc, _ := codec.HardwareEncoder(hw)
		b.videoEncoder = enc
		b.usedHardware = hw
		return
	}

	b.warn(WarnHardwareFallback,
		"%s has no %s encoder, using software encoder %s", hw, codec, codec.Encoder())
}

// hwaccelInputFlags emits decoder-side acceleration flags when the
// resolved encoder is a hardware one.
func (b *builder) hwaccelInputFlags() {
	switch b.usedHardware {
	case models.HWAccelNVENC:
		b.add("-hwaccel", "cuda")
	case models.HWAccelVAAPI:
		b.add("-hwaccel", "vaapi", "-vaapi_device", "/dev/dri/renderD128")
	case models.HWAccelVT:
		b.add("-hwaccel", "videotoolbox")
	}
}

// videoArgs emits the single-rendition video options.
func (b *builder) videoArgs() {
	cfg := b.cfg
	b.add("-c:v", b.videoEncoder)

	if b.videoEncoder == "copy" {
		return
	}

	if cfg.VideoBitrate != "" {
		b.add("-b:v", cfg.VideoBitrate)
	}
	if cfg.FrameRate != "" {
		b.add("-r", cfg.FrameRate)
	}
	if cfg.Preset != "" {
		b.add("-preset", cfg.Preset)
	}
	if cfg.Profile != "" {
		b.add("-profile:v", cfg.Profile)
	}
	if cfg.Level != "" {
		b.add("-level", cfg.Level)
	}
	if cfg.Resolution != "" {
		b.add("-s", cfg.Resolution)
	}
	if cfg.VideoFilters != "" {
		b.add("-vf", cfg.VideoFilters)
	}
}

// audioArgs emits the audio options.
func (b *builder) audioArgs() {
	cfg := b.cfg
	codec, _ := models.ParseAudioCodec(cfg.AudioCodec)
	b.add("-c:a", codec.Encoder())

	if codec == models.AudioCodecCopy {
		return
	}

	if cfg.AudioBitrate != "" {
		b.add("-b:a", cfg.AudioBitrate)
	}
	if cfg.AudioChannels > 0 {
		b.add("-ac", fmt.Sprintf("%d", cfg.AudioChannels))
	}
	if cfg.AudioSampleRate > 0 {
		b.add("-ar", fmt.Sprintf("%d", cfg.AudioSampleRate))
	}
	if cfg.AudioVolume > 0 && cfg.AudioVolume != 1.0 {
		b.add("-af", fmt.Sprintf("volume=%g", cfg.AudioVolume))
	}
}

// segmentDuration returns the effective HLS segment duration.
func (b *builder) segmentDuration() int {
	if b.cfg.SegmentDuration > 0 {
		return b.cfg.SegmentDuration
	}
	if b.env.DefaultSegmentDuration > 0 {
		return b.env.DefaultSegmentDuration
	}
	return defaultSegmentDuration
}

// playlistSize returns the effective HLS playlist size.
func (b *builder) playlistSize() int {
	if b.cfg.PlaylistSize > 0 {
		return b.cfg.PlaylistSize
	}
	return defaultPlaylistSize
}

// segmentType returns the effective HLS segment type.
func (b *builder) segmentType() string {
	if b.cfg.SegmentType != "" {
		return b.cfg.SegmentType
	}
	return models.SegmentTypeMPEGTS
}

// segmentPattern returns the effective segment filename pattern,
// matching the segment type's extension when defaulted.
func (b *builder) segmentPattern() string {
	if b.cfg.SegmentPattern != "" {
		return b.cfg.SegmentPattern
	}
	if b.segmentType() == models.SegmentTypeFMP4 {
		return "segment_%03d.m4s"
	}
	return models.DefaultSegmentPattern
}

// hlsCommonArgs emits the HLS muxer options shared by single and ABR
// output.
func (b *builder) hlsCommonArgs(segmentFilename string) {
	b.add("-f", "hls")
	b.add("-hls_time", fmt.Sprintf("%d", b.segmentDuration()))
	b.add("-hls_list_size", fmt.Sprintf("%d", b.playlistSize()))
	if b.cfg.PlaylistType != "" {
		b.add("-hls_playlist_type", b.cfg.PlaylistType)
	}
	b.add("-hls_segment_type", b.segmentType())
	b.add("-hls_segment_filename", segmentFilename)
}

// primaryOutput emits the output block for non-ABR jobs.
func (b *builder) primaryOutput() {
	cfg := b.cfg
	format := models.OutputFormat(cfg.OutputFormat)

	switch {
	case format == models.OutputFormatHLS:
		b.hlsCommonArgs(path.Join(cfg.OutputDir, b.segmentPattern()))
		b.add(path.Join(cfg.OutputDir, models.MasterPlaylistName))
	case format == models.OutputFormatUDP:
		b.add("-f", "mpegts", cfg.OutputURL)
	case format == models.OutputFormatRTMP:
		b.add("-f", "flv", cfg.OutputURL)
	case format == models.OutputFormatFile:
		// Generic file output: container inferred from the extension.
		b.add(cfg.OutputURL)
	default:
		b.add("-f", cfg.OutputFormat, cfg.OutputURL)
	}
}

// abrOutput emits the variant-stream output block: per-variant maps and
// encoder options, then one HLS muxer with a var_stream_map in ladder
// order.
func (b *builder) abrOutput() {
	cfg := b.cfg

	// Each variant needs its own copy of the source streams unless the
	// user declared explicit maps.
	if len(cfg.StreamMaps) == 0 {
		for range cfg.ABRVariants {
			b.add("-map", "0:v:0", "-map", "0:a:0")
		}
	}

	for i, v := range cfg.ABRVariants {
		codecName := v.VideoCodec
		if codecName == "" {
			codecName = cfg.VideoCodec
		}
		codec, _ := models.ParseVideoCodec(codecName)
		enc := b.variantEncoder(codec, v.Name)

		b.add(fmt.Sprintf("-c:v:%d", i), enc)
		if v.VideoBitrate != "" {
			b.add(fmt.Sprintf("-b:v:%d", i), v.VideoBitrate)
		}
		if v.MaxRate != "" {
			b.add(fmt.Sprintf("-maxrate:v:%d", i), v.MaxRate)
		}
		if v.BufSize != "" {
			b.add(fmt.Sprintf("-bufsize:v:%d", i), v.BufSize)
		}
		if v.Resolution != "" {
			b.add(fmt.Sprintf("-filter:v:%d", i), "scale="+strings.Replace(v.Resolution, "x", ":", 1))
		}
	}

	b.audioArgs()

	b.hlsCommonArgs(path.Join(cfg.OutputDir, "%v", b.segmentPattern()))
	b.add("-master_pl_name", models.MasterPlaylistName)

	entries := make([]string, 0, len(cfg.ABRVariants))
	for i, v := range cfg.ABRVariants {
		entries = append(entries, fmt.Sprintf("v:%d,a:%d,name:%s", i, i, v.Name))
	}
	b.add("-var_stream_map", strings.Join(entries, " "))

	b.add(path.Join(cfg.OutputDir, "%v", "index.m3u8"))
}

// variantEncoder resolves a ladder rung's encoder, applying the same
// hardware fallback rule as the single-rendition path.
func (b *builder) variantEncoder(codec models.VideoCodec, variantName string) string {
	if b.cfg.HardwareAccel == "" || codec == models.VideoCodecCopy {
		return codec.Encoder()
	}

	hw, _ := models.ParseHWAccel(b.cfg.HardwareAccel)
	if b.env.Supports(hw, codec) {
		enc, _ := codec.HardwareEncoder(hw)
		return enc
	}

	b.warn(WarnHardwareFallback,
		"%s has no %s encoder for variant %s, using software encoder %s", hw, codec, variantName, codec.Encoder())
	return codec.Encoder()
}

// plan derives the OutputPlan for the compiled config.
func (b *builder) plan() OutputPlan {
	cfg := b.cfg
	format := models.OutputFormat(cfg.OutputFormat)

	switch {
	case format == models.OutputFormatHLS:
		return OutputPlan{
			Kind:               PlanKindHLS,
			BaseDir:            cfg.OutputDir,
			MasterPlaylistPath: path.Join(cfg.OutputDir, models.MasterPlaylistName),
			PublicMasterURL:    b.publicMasterURL(),
			SegmentPattern:     b.segmentPattern(),
		}
	case format.IsFileOutput():
		return OutputPlan{
			Kind:           PlanKindFile,
			OutputFilePath: cfg.OutputURL,
		}
	default:
		return OutputPlan{
			Kind:           PlanKindStream,
			DestinationURL: cfg.OutputURL,
		}
	}
}

// publicMasterURL maps the output directory onto the public HLS URL
// root when the directory sits under the HLS base directory.
func (b *builder) publicMasterURL() string {
	if b.env.HLSBaseURL == "" || b.env.HLSBaseDir == "" {
		return ""
	}
	rel, err := filepath.Rel(b.env.HLSBaseDir, b.cfg.OutputDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return ""
	}
	base := strings.TrimRight(b.env.HLSBaseURL, "/")
	if rel == "." {
		return base + "/" + models.MasterPlaylistName
	}
	return base + "/" + path.Join(filepath.ToSlash(rel), models.MasterPlaylistName)
}
