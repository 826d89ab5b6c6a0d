// Package gdrive syncs the input and output folders directly through the
// Google Drive v3 API for hosts that do not have rclone configured.
//
// Authentication uses an OAuth refresh token obtained once with
// `sketchreel gdrive auth`; NewService turns it into an authorised
// *drive.Service. Client.Pull mirrors rclone's `copy --drive-skip-gdocs
// --ignore-existing`: native Google documents are skipped and names already
// present locally are never fetched again. Client.Push uploads local files,
// recreating sub-directories as Drive folders.
package gdrive
