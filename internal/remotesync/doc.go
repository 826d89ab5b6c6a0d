// Package remotesync is the remote sync adapter: two one-directional folder
// operations, Pull (remote inputs to the local input directory) and Push
// (local outputs to the remote output directory).
//
// Three backends implement Syncer: rclone (the default, shelling out to
// `rclone copy`), gdrive (the Drive v3 API directly) and dir (a mounted
// directory). Pull never re-downloads a name already present locally. Push
// copies everything; whether an unchanged file is transferred again is up to
// the backend. A failed transfer is returned as an error and never retried
// here.
package remotesync
