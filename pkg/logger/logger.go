package logger

// Logger :
// Describes a common interface used for logging purposes.
// It allows the logging of some messages based on a content
// and a severity, and the release of the logging device.
//
// The `Trace` allows to log a message with the specified
// level.
//
// The `Release` allows to terminate the logger and make sure
// that any message still buffered internally is flushed to
// the underlying device before the application exits.
type Logger interface {
	Trace(level Severity, module string, message string)
	Release()
}
