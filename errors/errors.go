package errors

import (
	stderrors "errors"
	"fmt"
	"go/token"
	"reflect"
	"strings"
)

// Sentinel errors matchable with errors.Is against any *TaskError of the same kind.
var (
	ErrCancelled         = stderrors.New("task cancelled")
	ErrDestinationExists = stderrors.New("destination already exists")
	ErrInvalidTarget     = stderrors.New("destination is a directory")
)

// TaskError is the single error type surfaced by task execution.
type TaskError struct {
	// Kind classifies the failure.
	Kind Kind
	// Stage names the phase that produced the failure ("File Loading", a stage name, "File Writing").
	// Empty when the failure did not happen inside an identifiable phase.
	Stage string
	// Path is the file the failure relates to, if any.
	Path string
	// Cause is the underlying error.
	Cause error
}

// Error renders "During {stage} -> {InnerType}: {message}" when the stage is
// known, otherwise just the inner error's message.
func (e *TaskError) Error() string {
	if e.Cause == nil {
		if e.Stage != "" {
			return fmt.Sprintf("During %s -> %s", e.Stage, e.Kind.Name())
		}
		return e.Kind.Name()
	}
	if e.Stage != "" {
		return fmt.Sprintf("During %s -> %s: %s", e.Stage, e.innerType(), e.Cause.Error())
	}
	return e.Cause.Error()
}

// innerType names the wrapped failure. Policy kinds name themselves; phase
// kinds name the type of the error they wrap, falling back to the kind's
// name when that type has no readable name.
func (e *TaskError) innerType() string {
	switch e.Kind {
	case KindLoadFailure, KindWriteFailure, KindStageFailure:
		if n := TypeName(e.Cause); n != GenericTypeName {
			return n
		}
	}
	return e.Kind.Name()
}

// Unwrap returns the underlying cause of the error.
func (e *TaskError) Unwrap() error { return e.Cause }

// Is matches the package sentinels by kind.
func (e *TaskError) Is(target error) bool {
	switch target {
	case ErrCancelled:
		return e.Kind == KindCancelled
	case ErrDestinationExists:
		return e.Kind == KindDestinationExists
	case ErrInvalidTarget:
		return e.Kind == KindInvalidTarget
	}
	return false
}

// ErrorType lets a TaskError nested inside another one render its kind name.
func (e *TaskError) ErrorType() string { return e.Kind.Name() }

// WithStage returns a copy of e labelled with stage when e has no stage yet.
// e itself is never modified, so shared error values stay intact.
func (e *TaskError) WithStage(stage string) *TaskError {
	c := *e
	if c.Stage == "" {
		c.Stage = stage
	}
	return &c
}

// New creates a TaskError of the given kind.
func New(kind Kind, stage string, cause error) *TaskError {
	return &TaskError{Kind: kind, Stage: stage, Cause: cause}
}

// --- Constructors ---

// LoadFailure wraps an error raised while reading the source.
func LoadFailure(path string, cause error) *TaskError {
	return &TaskError{Kind: KindLoadFailure, Stage: StageLoading, Path: path, Cause: cause}
}

// WriteFailure wraps an error raised while writing the destination.
func WriteFailure(path string, cause error) *TaskError {
	return &TaskError{Kind: KindWriteFailure, Stage: StageWriting, Path: path, Cause: cause}
}

// StageFailure wraps an error raised by the named transform stage.
func StageFailure(stage string, cause error) *TaskError {
	return &TaskError{Kind: KindStageFailure, Stage: stage, Cause: cause}
}

// DestinationExists reports an overwrite policy violation.
func DestinationExists(path string) *TaskError {
	return &TaskError{
		Kind: KindDestinationExists, Path: path,
		Cause: fmt.Errorf("%w: %s", ErrDestinationExists, path),
	}
}

// InvalidTarget reports a destination that is a directory.
func InvalidTarget(path string) *TaskError {
	return &TaskError{
		Kind: KindInvalidTarget, Path: path,
		Cause: fmt.Errorf("%w: %s", ErrInvalidTarget, path),
	}
}

// Cancelled reports a task aborted before it resolved. cause may be nil.
func Cancelled(cause error) *TaskError {
	if cause == nil {
		cause = ErrCancelled
	}
	return &TaskError{Kind: KindCancelled, Cause: cause}
}

// InvalidConfig reports an invalid parameter or configuration value.
func InvalidConfig(message string) *TaskError {
	return &TaskError{Kind: KindInvalidConfig, Cause: stderrors.New(message)}
}

// --- Helpers ---

// GenericTypeName is what TypeName reports for errors whose type has no
// readable name, such as those built by errors.New or fmt.Errorf.
const GenericTypeName = "error"

// TypeName returns the display name of err's type. Errors may override it by
// implementing ErrorType() string; otherwise the concrete Go type name is used
// with any pointer indirection removed. Unnamed types and unexported
// standard library types report GenericTypeName.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	if n, ok := err.(interface{ ErrorType() string }); ok {
		return n.ErrorType()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || (isStdlib(t.PkgPath()) && !token.IsExported(name)) {
		return GenericTypeName
	}
	return name
}

func isStdlib(pkgPath string) bool {
	first, _, _ := strings.Cut(pkgPath, "/")
	return !strings.Contains(first, ".")
}

// AsTaskError extracts a *TaskError from err's chain.
func AsTaskError(err error) (*TaskError, bool) {
	var te *TaskError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err's chain contains a TaskError of the given kind.
func IsKind(err error, kind Kind) bool {
	te, ok := AsTaskError(err)
	return ok && te.Kind == kind
}

// IsCancelled reports whether err represents a cancellation.
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrCancelled)
}

// Wrap labels err with stage. When err already carries a TaskError, a copy of
// it keeps its classification and gains stage only if it had none. err is
// never modified. Nil stays nil.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	if te, ok := AsTaskError(err); ok {
		return te.WithStage(stage)
	}
	return New(kind, stage, err)
}
