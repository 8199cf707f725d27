package pe

import "errors"

// Error kinds. Every failure the core raises wraps one of these with
// fmt.Errorf("...: %w", err); callers classify a failure with errors.Is
// against these sentinels rather than inspecting message text.
var (
	// ErrInvalidFormat means an on-wire invariant was violated: a bad
	// signature, magic number, count, alignment, or tree shape.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrUnsupported means the layout is valid PE but this editor doesn't
	// handle it: no resource section, a resize beyond the existing extent,
	// or a resource section that would become empty.
	ErrUnsupported = errors.New("unsupported")
	// ErrIO wraps a short read, short write, or open/close failure from
	// the Readable/Writable/Closeable collaborator.
	ErrIO = errors.New("i/o error")
	// ErrUsage means a caller (typically the CLI) passed bad arguments.
	ErrUsage = errors.New("usage error")
)
