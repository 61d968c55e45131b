package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediaconv/internal/config"
)

// Requirement names an external binary the pipeline executes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of looking a requirement up on PATH.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements returns the fetcher and transcoder binaries from cfg, or their
// default names when cfg is nil.
func Requirements(cfg *config.Config) []Requirement {
	fetcher, transcoder := "yt-dlp", "ffmpeg"
	if cfg != nil {
		fetcher, transcoder = cfg.Fetcher.Binary, cfg.Transcoder.Binary
	}
	return []Requirement{
		{Name: "yt-dlp", Command: fetcher, Description: "Fetches source media"},
		{Name: "FFmpeg", Command: transcoder, Description: "Transcodes to MP3/MP4"},
	}
}

// Check resolves one requirement.
func Check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Path = path
	status.Available = true
	return status
}

// CheckBinaries resolves every requirement, preserving order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Check(req)
	}
	return results
}

// Missing filters statuses down to unavailable required binaries.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
