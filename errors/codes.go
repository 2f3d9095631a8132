package errors

// Kind classifies a task failure.
type Kind string

// I/O phase failures
const (
	// KindLoadFailure indicates the source could not be read or decoded.
	KindLoadFailure Kind = "LOAD_FAILURE"
	// KindWriteFailure indicates the destination could not be encoded or published.
	KindWriteFailure Kind = "WRITE_FAILURE"
)

// Transform failures
const (
	// KindStageFailure indicates a transform stage failed.
	KindStageFailure Kind = "STAGE_FAILURE"
)

// Destination policy failures
const (
	// KindDestinationExists indicates the destination exists and overwrite is disabled.
	KindDestinationExists Kind = "DESTINATION_EXISTS"
	// KindInvalidTarget indicates the destination is a directory.
	KindInvalidTarget Kind = "INVALID_TARGET"
)

// Scheduling and configuration
const (
	// KindCancelled indicates the task was aborted by timeout or teardown.
	KindCancelled Kind = "CANCELLED"
	// KindInvalidConfig indicates a configuration or parameter is invalid.
	KindInvalidConfig Kind = "INVALID_CONFIG"
)

// Phase labels used as Stage for the I/O phases of a task.
const (
	StageLoading = "File Loading"
	StageWriting = "File Writing"
)

var kindNames = map[Kind]string{
	KindLoadFailure:       "LoadFailure",
	KindWriteFailure:      "WriteFailure",
	KindStageFailure:      "StageFailure",
	KindDestinationExists: "DestinationExists",
	KindInvalidTarget:     "InvalidTarget",
	KindCancelled:         "Cancelled",
	KindInvalidConfig:     "InvalidConfig",
}

// Name returns the short type-like name of the kind, e.g. "DestinationExists".
func (k Kind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return string(k)
}
