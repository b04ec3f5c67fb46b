package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed      ErrorCode = "initialization_failed"
	ErrShutdownFailed  ErrorCode = "shutdown_failed"
	ErrAlreadyRunning  ErrorCode = "already_running"
	ErrResourceBusy    ErrorCode = "resource_busy"
	ErrResourceMissing ErrorCode = "resource_not_found"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"

	// Safety errors
	ErrWatchdogInit    ErrorCode = "watchdog_init_failed"
	ErrWatchdogFeed    ErrorCode = "watchdog_feed_failed"
	ErrWatchdogExpired ErrorCode = "watchdog_timeout_expired"
	ErrSensorFault     ErrorCode = "sensor_fault"

	// Operation errors
	ErrOperationFailed  ErrorCode = "operation_failed"
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrInvalidOperation ErrorCode = "invalid_operation"

	// Telemetry errors
	ErrInitTelemetry    ErrorCode = "init_telemetry_failed"
	ErrCollectTelemetry ErrorCode = "collect_telemetry_failed"
	ErrCloseTelemetry   ErrorCode = "close_telemetry_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:         "Internal error occurred",
	ErrInvalidArgument:  "Invalid argument provided",
	ErrNotImplemented:   "Operation not implemented",
	ErrUnavailable:      "Service unavailable",
	ErrInvalidConfig:    "Invalid configuration",
	ErrMissingConfig:    "Missing configuration",
	ErrBindFlags:        "Failed to bind flags",
	ErrReadConfig:       "Failed to read configuration",
	ErrInvalidInterval:  "Invalid interval value",
	ErrInvalidLogLevel:  "Invalid log level",
	ErrInitFailed:       "Initialization failed",
	ErrShutdownFailed:   "Shutdown failed",
	ErrAlreadyRunning:   "Process already running",
	ErrResourceBusy:     "Resource is busy",
	ErrResourceMissing:  "Resource not found",
	ErrInitApp:          "Failed to initialize application",
	ErrMainLoop:         "Error in main loop",
	ErrWatchdogInit:     "Failed to register with watchdog device",
	ErrWatchdogFeed:     "Failed to feed watchdog",
	ErrWatchdogExpired:  "Watchdog feed cadence exceeded timeout",
	ErrSensorFault:      "Sensor reading outside expected envelope",
	ErrOperationFailed:  "Operation failed",
	ErrTimeout:          "Operation timed out",
	ErrInvalidOperation: "Invalid operation",
	ErrInitTelemetry:    "Failed to initialize telemetry",
	ErrCollectTelemetry: "Failed to collect telemetry data",
	ErrCloseTelemetry:   "Failed to close telemetry connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
