package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	DirCreated
	FileCompleted
	FileSkipped
	FileFailed
	FileDryRun
)

var typeNames = [...]string{
	ScanStarted:   "ScanStarted",
	ScanComplete:  "ScanComplete",
	DirCreated:    "DirCreated",
	FileCompleted: "FileCompleted",
	FileSkipped:   "FileSkipped",
	FileFailed:    "FileFailed",
	FileDryRun:    "FileDryRun",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Terminal reports whether the event marks a file's final outcome.
func (t Type) Terminal() bool {
	switch t {
	case FileCompleted, FileSkipped, FileFailed, FileDryRun:
		return true
	default:
		return false
	}
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // path relative to the source root
	Residency string
	Method    string // "copy" or "retrieve"
	Detail    string
	Size      int64
	Total     int64 // total files (ScanComplete)
	Duration  time.Duration
	Error     error
	WorkerID  int
}
