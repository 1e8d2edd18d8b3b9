package radio

// ConfigError is returned when the radio cannot be set up with the given configuration
type ConfigError struct {
	msg string
	err error
}

func NewConfigError(msg string, err error) *ConfigError {
	return &ConfigError{msg: msg, err: err}
}

func (e *ConfigError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.err
}

// RuntimeError is returned when a running radio fails to listen or transmit
type RuntimeError struct {
	msg string
	err error
}

func NewRuntimeError(msg string, err error) *RuntimeError {
	return &RuntimeError{msg: msg, err: err}
}

func (e *RuntimeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *RuntimeError) Unwrap() error {
	return e.err
}
