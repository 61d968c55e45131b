package ytdlp

import (
	"context"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

// runYTDLP executes one download and reads the info JSON yt-dlp prints while
// downloading.
func runYTDLP(ctx context.Context, inv invocation, sourceURL string) (Metadata, string, error) {
	cmd := ytdlp.New().
		Format(inv.Format).
		Output(inv.OutputPath).
		NoPlaylist().
		NoWarnings().
		NoCheckCertificates().
		NoProgress().
		DumpJSON().
		NoSimulate()
	if inv.Binary != "" {
		cmd.SetExecutable(inv.Binary)
	}
	if inv.CookiesFile != "" {
		cmd.Cookies(inv.CookiesFile)
	}
	if inv.MergeFormat != "" {
		cmd.MergeOutputFormat(inv.MergeFormat)
	}

	result, err := cmd.Run(ctx, sourceURL)
	var stderr string
	if result != nil {
		stderr = result.Stderr
	}
	if err != nil {
		return Metadata{}, stderr, err
	}

	var meta Metadata
	infos, err := result.GetExtractedInfo()
	if err != nil || len(infos) == 0 {
		return meta, stderr, nil
	}
	if infos[0].Title != nil {
		meta.Title = *infos[0].Title
	}
	if infos[0].Filename != nil {
		meta.Filename = *infos[0].Filename
	}
	return meta, stderr, nil
}
