package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFprobeSidecar reports the ffprobe binary the stitcher will execute.
//
// A configured ffmpeg path wins: an ffprobe sitting next to it is used
// before falling back to "ffprobe" on PATH, matching how static ffmpeg
// builds are usually unpacked.
func CheckFFprobeSidecar(ffmpegCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Reports the stitched video's duration",
		Optional:    true,
	}

	ffmpegBinary := strings.TrimSpace(ffmpegCommand)
	if ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			candidate := sidecarCandidate(resolved)
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	probeName := "ffprobe"
	if probePath, err := exec.LookPath(probeName); err == nil {
		result.Command = probePath
		result.Available = true
		return result
	}

	result.Command = probeName
	result.Detail = fmt.Sprintf("binary %q not found", probeName)
	return result
}

func sidecarCandidate(ffmpegPath string) string {
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(ffmpegPath), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
