// Package taskerr defines the stable error taxonomy shared across the
// taskforge runtime. Errors are values: every public API returns them
// instead of panicking or raising exceptions, per the library's
// error-handling contract.
package taskerr

import "fmt"

// Code is a stable, stringified error code. Values never change meaning
// once assigned; new codes are appended, never renumbered.
type Code int

const (
	// InvalidArgument covers a null job, an empty batch, or a
	// nonsensical configuration value.
	InvalidArgument Code = iota + 1
	// QueueEmpty is returned by a dequeue on an empty or stopped queue.
	QueueEmpty
	// QueueFull is returned by a bounded queue under the Reject
	// overflow policy.
	QueueFull
	// QueueStopped is returned by an enqueue attempted after Stop.
	QueueStopped
	// AlreadyRunning is returned by Start on an already-running pool.
	AlreadyRunning
	// NoWorkers is returned by Start when zero workers were configured.
	NoWorkers
	// JobExecutionFailed wraps a job body's error, or a recovered panic.
	JobExecutionFailed
	// OperationCancelled is returned when a future's job was cancelled
	// before or after dispatch.
	OperationCancelled
	// CircuitOpen is returned when a circuit breaker rejects a request.
	CircuitOpen
	// CircuitHalfOpen is returned when the half-open trial slot cap is
	// already exhausted.
	CircuitHalfOpen
	// HazardExhausted is returned when a goroutine's hazard-pointer
	// slot budget is exceeded.
	HazardExhausted
	// Timeout is returned by Future.GetFor when the deadline elapses
	// before the result is ready.
	Timeout
)

var names = map[Code]string{
	InvalidArgument:    "InvalidArgument",
	QueueEmpty:         "QueueEmpty",
	QueueFull:          "QueueFull",
	QueueStopped:       "QueueStopped",
	AlreadyRunning:     "AlreadyRunning",
	NoWorkers:          "NoWorkers",
	JobExecutionFailed: "JobExecutionFailed",
	OperationCancelled: "OperationCancelled",
	CircuitOpen:        "CircuitOpen",
	CircuitHalfOpen:    "CircuitHalfOpen",
	HazardExhausted:    "HazardExhausted",
	Timeout:            "Timeout",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// ErrorInfo is the error value carried by a job's Future on failure. It
// implements error and Unwrap, so callers can use errors.Is/errors.As
// against the sentinel Of* values below or against Source.
type ErrorInfo struct {
	Code    Code
	Message string
	Source  error
}

// New builds an ErrorInfo with no wrapped source error.
func New(code Code, message string) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: message}
}

// Wrap builds an ErrorInfo that wraps an underlying error.
func Wrap(code Code, message string, source error) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: message, Source: source}
}

func (e *ErrorInfo) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Source)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped source error, if any, for errors.Is/As.
func (e *ErrorInfo) Unwrap() error {
	return e.Source
}

// Is reports whether target is an *ErrorInfo with the same Code,
// allowing errors.Is(err, taskerr.New(taskerr.QueueFull, "")) style
// sentinel checks without matching on Message.
func (e *ErrorInfo) Is(target error) bool {
	other, ok := target.(*ErrorInfo)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// Sentinel instances for errors.Is comparisons against a bare code,
// e.g. errors.Is(err, taskerr.ErrQueueStopped).
var (
	ErrInvalidArgument    = New(InvalidArgument, "invalid argument")
	ErrQueueEmpty         = New(QueueEmpty, "queue is empty")
	ErrQueueFull          = New(QueueFull, "queue is full")
	ErrQueueStopped       = New(QueueStopped, "queue is stopped")
	ErrAlreadyRunning     = New(AlreadyRunning, "pool already running")
	ErrNoWorkers          = New(NoWorkers, "pool has no workers")
	ErrJobExecutionFailed = New(JobExecutionFailed, "job execution failed")
	ErrOperationCancelled = New(OperationCancelled, "operation cancelled")
	ErrCircuitOpen        = New(CircuitOpen, "circuit breaker is open")
	ErrCircuitHalfOpen    = New(CircuitHalfOpen, "circuit breaker half-open trial slots exhausted")
	ErrHazardExhausted    = New(HazardExhausted, "hazard pointer slots exhausted")
	ErrTimeout            = New(Timeout, "operation timed out")
)
