package remotesync

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sketchreel/internal/fileutil"
	"sketchreel/internal/services"
)

// DirBackend treats a mounted directory (NFS, SMB, a synced desktop folder)
// as the remote store.
type DirBackend struct {
	inputDir  string
	outputDir string
}

// NewDirBackend resolves the input and output mirrors under root.
func NewDirBackend(root, inputPath, outputPath string) *DirBackend {
	return &DirBackend{
		inputDir:  filepath.Join(root, inputPath),
		outputDir: filepath.Join(root, outputPath),
	}
}

// Pull copies top-level files from the remote input directory that are not
// already present in localDir. Hidden files are ignored.
func (d *DirBackend) Pull(ctx context.Context, localDir string) error {
	entries, err := os.ReadDir(d.inputDir)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "dirsync", "pull", "read "+d.inputDir, err)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("create local directory: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() || isHidden(entry.Name()) {
			continue
		}
		target := filepath.Join(localDir, entry.Name())
		if _, err := os.Lstat(target); err == nil {
			continue
		}
		if err := fileutil.CopyFile(filepath.Join(d.inputDir, entry.Name()), target); err != nil {
			return services.Wrap(services.ErrExternalTool, "dirsync", "pull", entry.Name(), err)
		}
	}
	return nil
}

// Push copies the localDir tree into the remote output directory. Files whose
// remote copy already has identical content are skipped.
func (d *DirBackend) Push(ctx context.Context, localDir string) error {
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "dirsync", "push", "create "+d.outputDir, err)
	}
	return filepath.WalkDir(localDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(d.outputDir, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() || isHidden(entry.Name()) {
			return nil
		}
		if sameContent(path, target) {
			return nil
		}
		if err := fileutil.CopyFile(path, target); err != nil {
			return services.Wrap(services.ErrExternalTool, "dirsync", "push", rel, err)
		}
		return nil
	})
}

// Describe names the mirrored directories.
func (d *DirBackend) Describe() string {
	return fmt.Sprintf("dir %s -> %s", d.inputDir, d.outputDir)
}

func sameContent(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil || infoA.Size() != infoB.Size() {
		return false
	}
	dataA, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	dataB, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return bytes.Equal(dataA, dataB)
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
