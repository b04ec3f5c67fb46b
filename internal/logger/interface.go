package logger

// Logger defines the interface for logging operations.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
}

// EventSink receives structured safety fault events. The supervisor emits
// exactly one event per limp-mode entry; implementations must not block.
type EventSink interface {
	LogEvent(cause string, value uint32)
}

// sinkFunc adapts a function to the EventSink interface
type sinkFunc func(cause string, value uint32)

func (f sinkFunc) LogEvent(cause string, value uint32) {
	f(cause, value)
}

// DefaultEventSink returns an EventSink backed by the package logger
func DefaultEventSink() EventSink {
	return sinkFunc(SafetyEvent)
}
