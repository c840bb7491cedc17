package archive

import "errors"

// Sentinel errors for archive access. Callers classify with errors.Is.
var (
	// ErrArchiveNotFound reports that no archive exists at the reader's path.
	ErrArchiveNotFound = errors.New("archive not found")

	// ErrArchiveCorrupt reports an unreadable gzip or tar stream.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrArchiveBusy reports a finalize racing another finalize on the
	// same builder.
	ErrArchiveBusy = errors.New("archive finalize already in progress")

	// ErrMemberDecode reports a single member whose JSON failed to decode.
	// Bulk extraction skips such members; the sentinel surfaces only in logs.
	ErrMemberDecode = errors.New("archive member decode failed")
)
