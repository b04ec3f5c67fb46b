package errors

// ErrorCode names one failure class. Codes are stable strings so log
// pipelines can match on them; messages are free to change.
type ErrorCode string

// Error is the domain error passed between packages: a code, an
// optional message override, a wrapped cause and attached context data.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory constructs domain errors. Call sites create one locally
// rather than sharing an instance.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
