package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"sketchreel/internal/config"
	"sketchreel/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be entered.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckRemote validates the selected sync backend's settings without
// touching the network.
func CheckRemote(cfg *config.Config) Result {
	const name = "Remote"
	switch cfg.Remote.Backend {
	case config.BackendRclone:
		if strings.TrimSpace(cfg.Remote.Name) == "" {
			return Result{Name: name, Detail: "rclone remote name missing"}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("rclone %s -> %s", cfg.RemoteInput(), cfg.RemoteOutput())}
	case config.BackendGDrive:
		switch {
		case cfg.GDrive.RefreshToken == "":
			return Result{Name: name, Detail: "gdrive refresh token missing (run `sketchreel gdrive auth`)"}
		case cfg.GDrive.InputFolderID == "" || cfg.GDrive.OutputFolderID == "":
			return Result{Name: name, Detail: "gdrive folder ids missing"}
		}
		return Result{Name: name, Passed: true, Detail: "gdrive API credentials present"}
	case config.BackendDir:
		result := CheckDirectoryReadable(name, cfg.Remote.DirRoot)
		if result.Passed {
			result.Detail = "dir " + cfg.Remote.DirRoot
		}
		return result
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown backend %q", cfg.Remote.Backend)}
	}
}

// CheckModelServer pings TorchServe once.
func CheckModelServer(ctx context.Context, pingURL string) Result {
	const name = "TorchServe"
	pingURL = strings.TrimSpace(pingURL)
	if pingURL == "" {
		return Result{Name: name, Detail: "missing ping url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, pingURL, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: 3 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: "not running (start with `sketchreel model-server`)"}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("ping returned %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Healthy"}
}

// CheckSystemDeps evaluates the binaries the configuration will invoke. The
// daemon and `sketchreel check` share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if len(cfg.Animator.Wrapper) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Animator wrapper",
			Command:     cfg.Animator.Wrapper[0],
			Description: "Provides a virtual display for the animation tool",
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "Animator",
		Command:     cfg.Animator.Command,
		Description: "Required to animate drawings",
	})
	if cfg.Remote.Backend == config.BackendRclone {
		requirements = append(requirements, deps.Requirement{
			Name:        "rclone",
			Command:     cfg.Remote.RcloneBinary,
			Description: "Required for remote sync",
		})
	}
	if cfg.Convert.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "HEIC converter",
			Command:     cfg.Convert.HEICConverter,
			Description: "Converts phone photos (.heic)",
			Optional:    true,
		})
	}
	requirements = append(requirements,
		deps.Requirement{
			Name:        "FFmpeg",
			Command:     cfg.Stitch.FFmpegBinary,
			Description: "Required for `sketchreel stitch`",
			Optional:    true,
		},
		deps.Requirement{
			Name:        "TorchServe",
			Command:     cfg.ModelServer.TorchServeBinary,
			Description: "Hosts the drawn humanoid detector",
			Optional:    true,
		},
	)
	statuses := deps.CheckBinaries(requirements)
	return append(statuses, deps.CheckFFprobeSidecar(cfg.Stitch.FFmpegBinary))
}
