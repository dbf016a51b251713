package compiler

import "strings"

// PlanKind classifies where a job's output lands.
type PlanKind string

const (
	// PlanKindHLS is segmented output into a directory.
	PlanKindHLS PlanKind = "hls"
	// PlanKindFile is a single container file.
	PlanKindFile PlanKind = "file"
	// PlanKindStream is a push to a network destination.
	PlanKindStream PlanKind = "stream"
)

// OutputPlan identifies where a compiled job's artifacts land. The job
// service surfaces these paths and URLs on the job record.
type OutputPlan struct {
	Kind PlanKind `json:"kind"`

	// HLS output.
	BaseDir            string `json:"base_dir,omitempty"`
	MasterPlaylistPath string `json:"master_playlist_path,omitempty"`
	PublicMasterURL    string `json:"public_master_url,omitempty"`
	SegmentPattern     string `json:"segment_pattern,omitempty"`

	// File output.
	OutputFilePath string `json:"output_file_path,omitempty"`

	// Stream output.
	DestinationURL string `json:"destination_url,omitempty"`
}

// WarningCode identifies a non-fatal compile diagnostic.
type WarningCode string

const (
	// WarnHardwareFallback means the requested accelerator cannot encode
	// the requested codec and the software encoder was used instead.
	WarnHardwareFallback WarningCode = "hardware_fallback"
)

// Warning is one non-fatal compile diagnostic.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Result is the output of one compilation.
type Result struct {
	// Args is the full argv, starting with the encoder binary name.
	Args []string `json:"args"`

	// Plan describes where output artifacts land.
	Plan OutputPlan `json:"plan"`

	// Warnings are non-fatal diagnostics raised during compilation.
	Warnings []Warning `json:"warnings,omitempty"`
}

// Command returns the argv joined for display. Arguments containing
// spaces are double-quoted so the string tokenizes back to Args.
func (r *Result) Command() string {
	var sb strings.Builder
	for i, a := range r.Args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if strings.ContainsRune(a, ' ') {
			sb.WriteByte('"')
			sb.WriteString(strings.ReplaceAll(a, `"`, `\"`))
			sb.WriteByte('"')
		} else {
			sb.WriteString(a)
		}
	}
	return sb.String()
}
