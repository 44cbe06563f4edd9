package psrs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Returned for invalid inputs to the protocol (process count, element count,
// options). Always raised before any collective is issued.
type ConfigurationError struct {
	Reason string
}

func (self *ConfigurationError) Error() string {
	return "Invalid configuration: " + self.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// A collective failed during the given phase. The run has no usable output
// once this is returned, on any rank.
type CommunicationError struct {
	Phase Phase
	Err   error
}

func (self *CommunicationError) Error() string {
	return fmt.Sprintf("Communication failure during %v: %v", self.Phase, self.Err)
}

func (self *CommunicationError) Unwrap() error {
	return self.Err
}

func (self *CommunicationError) Cause() error {
	return self.Err
}

func commError(phase Phase, err error, format string, args ...interface{}) error {
	return &CommunicationError{Phase: phase, Err: errors.Wrapf(err, format, args...)}
}

// IsConfigurationError reports whether err (or anything it wraps) is a
// ConfigurationError.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}

// IsCommunicationError reports whether err (or anything it wraps) is a
// CommunicationError.
func IsCommunicationError(err error) bool {
	var cerr *CommunicationError
	return errors.As(err, &cerr)
}
