package connectivity

import "errors"

// ErrSyncFailed wraps the submitter error when a batch is rejected.
var ErrSyncFailed = errors.New("sync failed")

// ErrAlreadyWatching is returned by Watch when a signal is already attached.
var ErrAlreadyWatching = errors.New("tracker already watching a signal")
