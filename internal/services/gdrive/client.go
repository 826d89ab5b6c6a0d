package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	drive "google.golang.org/api/drive/v3"

	"sketchreel/internal/fileutil"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	googleAppsPrefix = "application/vnd.google-apps."
	listFields       = "nextPageToken, files(id, name, mimeType, size)"
	listPageSize     = 200
)

// Client syncs two Drive folders against local directories. Drive file IDs
// never leave this package; callers only see local paths.
type Client struct {
	srv            *drive.Service
	inputFolderID  string
	outputFolderID string
	logger         *slog.Logger
}

// NewClient wraps an authenticated Drive service.
func NewClient(srv *drive.Service, inputFolderID, outputFolderID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		srv:            srv,
		inputFolderID:  strings.TrimSpace(inputFolderID),
		outputFolderID: strings.TrimSpace(outputFolderID),
		logger:         logging.NewComponentLogger(logger, "gdrive"),
	}
}

// Pull downloads every regular file in the input folder that is not already
// present in localDir. Google-native documents and sub-folders are skipped.
func (c *Client) Pull(ctx context.Context, localDir string) error {
	if c.inputFolderID == "" {
		return services.Wrap(services.ErrConfiguration, "gdrive", "pull", "input folder id not configured", nil)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("create local directory: %w", err)
	}

	files, err := c.listChildren(ctx, c.inputFolderID)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "gdrive", "list input", "", err)
	}

	var downloaded, skipped int
	for _, file := range files {
		if strings.HasPrefix(file.MimeType, googleAppsPrefix) {
			skipped++
			continue
		}
		name, ok := safeName(file.Name)
		if !ok {
			c.logger.Warn("skipping remote file with unsafe name",
				logging.String("name", file.Name),
				logging.String(logging.FieldEventType, "gdrive_unsafe_name"),
			)
			skipped++
			continue
		}
		target := filepath.Join(localDir, name)
		if _, err := os.Lstat(target); err == nil {
			skipped++
			continue
		}
		if err := c.download(ctx, file.Id, target); err != nil {
			return services.Wrap(services.ErrExternalTool, "gdrive", "download", name, err)
		}
		downloaded++
	}

	c.logger.Debug("drive pull complete",
		logging.Int("downloaded", downloaded),
		logging.Int("skipped", skipped),
	)
	return nil
}

// Push uploads every file under localDir into the output folder, mirroring
// sub-directories as Drive folders. A remote file with the same name and
// size is left alone; one with a different size is replaced in place.
func (c *Client) Push(ctx context.Context, localDir string) error {
	if c.outputFolderID == "" {
		return services.Wrap(services.ErrConfiguration, "gdrive", "push", "output folder id not configured", nil)
	}
	uploaded, err := c.pushDir(ctx, localDir, c.outputFolderID)
	if err != nil {
		return err
	}
	c.logger.Debug("drive push complete", logging.Int("uploaded", uploaded))
	return nil
}

func (c *Client) pushDir(ctx context.Context, localDir, folderID string) (int, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return 0, fmt.Errorf("read local directory: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	remote, err := c.listChildren(ctx, folderID)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "gdrive", "list output", "", err)
	}
	byName := make(map[string]*drive.File, len(remote))
	for _, file := range remote {
		byName[file.Name] = file
	}

	uploaded := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return uploaded, ctx.Err()
		}
		localPath := filepath.Join(localDir, entry.Name())
		existing := byName[entry.Name()]

		if entry.IsDir() {
			childID, err := c.ensureFolder(ctx, folderID, entry.Name(), existing)
			if err != nil {
				return uploaded, err
			}
			n, err := c.pushDir(ctx, localPath, childID)
			uploaded += n
			if err != nil {
				return uploaded, err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return uploaded, fmt.Errorf("stat %s: %w", localPath, err)
		}
		if existing != nil && existing.MimeType != folderMimeType && existing.Size == info.Size() {
			continue
		}
		if err := c.upload(ctx, folderID, localPath, existing); err != nil {
			return uploaded, services.Wrap(services.ErrExternalTool, "gdrive", "upload", entry.Name(), err)
		}
		uploaded++
	}
	return uploaded, nil
}

func (c *Client) listChildren(ctx context.Context, folderID string) ([]*drive.File, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	var files []*drive.File
	err := c.srv.Files.List().
		Q(query).
		Fields(listFields).
		PageSize(listPageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) download(ctx context.Context, fileID, target string) error {
	resp, err := c.srv.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return fileutil.WriteAtomic(target, resp.Body, 0o644)
}

func (c *Client) upload(ctx context.Context, folderID, localPath string, existing *drive.File) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var media io.Reader = f
	if existing != nil && existing.MimeType != folderMimeType {
		_, err = c.srv.Files.Update(existing.Id, &drive.File{}).
			Media(media).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	}
	file := &drive.File{
		Name:    filepath.Base(localPath),
		Parents: []string{folderID},
	}
	_, err = c.srv.Files.Create(file).
		Media(media).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (c *Client) ensureFolder(ctx context.Context, parentID, name string, existing *drive.File) (string, error) {
	if existing != nil {
		if existing.MimeType != folderMimeType {
			return "", services.Wrap(services.ErrValidation, "gdrive", "create folder",
				fmt.Sprintf("%s exists remotely as a file", name), nil)
		}
		return existing.Id, nil
	}
	created, err := c.srv.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}).SupportsAllDrives(true).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "gdrive", "create folder", name, err)
	}
	if created == nil || created.Id == "" {
		return "", errors.New("drive returned folder without id")
	}
	return created.Id, nil
}

// safeName rejects names that would escape the local directory.
func safeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

func escapeQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
