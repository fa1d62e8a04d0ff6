package types

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindContract  ErrKind = iota // caller broke the allocator contract (bad size, foreign pointer)
	ErrKindExhausted                // the OS refused to hand out more pages
	ErrKindState                    // invalid operation for current state (e.g., closed cache)
)

// Error is a typed error with an optional underlying cause.
//
// The allocator reports contract violations and memory exhaustion by
// panicking with an error that wraps one of the sentinels below, so a
// recovering caller can still use errors.Is.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinels shared by every tier.
var (
	// ErrZeroSize indicates a zero-byte allocation request.
	ErrZeroSize = &Error{Kind: ErrKindContract, Msg: "size must be > 0"}
	// ErrSizeTooLarge indicates a size above the front-end ceiling on a path
	// that only serves small requests.
	ErrSizeTooLarge = &Error{Kind: ErrKindContract, Msg: "size exceeds front-end ceiling"}
	// ErrNilPointer indicates a nil pointer passed to Free.
	ErrNilPointer = &Error{Kind: ErrKindContract, Msg: "free of nil pointer"}
	// ErrUnknownAddress indicates an address the allocator never handed out.
	ErrUnknownAddress = &Error{Kind: ErrKindContract, Msg: "address not owned by allocator"}
	// ErrOutOfRange indicates a page id beyond the page map's address range.
	ErrOutOfRange = &Error{Kind: ErrKindContract, Msg: "page id outside page map range"}
	// ErrOutOfMemory indicates the OS page source failed.
	ErrOutOfMemory = &Error{Kind: ErrKindExhausted, Msg: "out of memory"}
	// ErrClosed indicates use of a closed cache or heap.
	ErrClosed = &Error{Kind: ErrKindState, Msg: "allocator closed"}
)
