package types

// DownloadStatus is the lifecycle state of a single download task.
// The integer values are persisted and must not be reordered.
type DownloadStatus int32

const (
	StatusQueued DownloadStatus = iota
	StatusActive
	StatusPaused
	StatusCompleted
	StatusFailed
	StatusCanceled
)

// String returns the lowercase status label used in listings and the journal
func (s DownloadStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "canceled"
	}
}

// StatusFromInt maps a persisted ordinal back to a status.
// Unknown values map to StatusCanceled, which no collection holds.
func StatusFromInt(i int) DownloadStatus {
	if i < int(StatusQueued) || i > int(StatusCanceled) {
		return StatusCanceled
	}
	return DownloadStatus(i)
}

// IsTerminal reports whether no further transition is possible
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// ErrorKind classifies why a transfer or lookup failed.
// Values are persisted as integers in the state file.
type ErrorKind int

const (
	ErrNone                ErrorKind = 0
	ErrFailedInit          ErrorKind = 2
	ErrCouldNotResolveHost ErrorKind = 6
	ErrCouldNotConnect     ErrorKind = 7
	ErrHTTPReturnedError   ErrorKind = 22
	ErrWriteError          ErrorKind = 23
	ErrOperationTimedOut   ErrorKind = 28
	ErrRangeError          ErrorKind = 33
	ErrSSLConnectError     ErrorKind = 35
	ErrAbortedByCallback   ErrorKind = 42
	ErrTooManyRedirects    ErrorKind = 47
	ErrPartialFile         ErrorKind = 18
	ErrInsufficientSpace   ErrorKind = 70
	ErrUnknown             ErrorKind = 99
)

var errorMessages = map[ErrorKind]string{
	ErrNone:                "No error",
	ErrFailedInit:          "Failed initialization",
	ErrCouldNotResolveHost: "Couldn't resolve host name",
	ErrCouldNotConnect:     "Couldn't connect to server",
	ErrHTTPReturnedError:   "HTTP response code said error",
	ErrWriteError:          "Failed writing received data to disk/application",
	ErrOperationTimedOut:   "Timeout was reached",
	ErrRangeError:          "Requested range was not delivered by the server",
	ErrSSLConnectError:     "SSL connect error",
	ErrAbortedByCallback:   "Operation was aborted by an application callback",
	ErrTooManyRedirects:    "Number of redirects hit maximum amount",
	ErrPartialFile:         "Transferred a partial file",
	ErrInsufficientSpace:   "Disk full or allocation exceeded",
	ErrUnknown:             "Unknown error",
}

// Message returns the human-readable description shown for failed tasks
func (k ErrorKind) Message() string {
	if msg, ok := errorMessages[k]; ok {
		return msg
	}
	return errorMessages[ErrUnknown]
}

func (k ErrorKind) String() string {
	return k.Message()
}

// ErrorKindFromInt maps a persisted integer back to a known kind.
func ErrorKindFromInt(i int) ErrorKind {
	k := ErrorKind(i)
	if _, ok := errorMessages[k]; ok {
		return k
	}
	return ErrUnknown
}
