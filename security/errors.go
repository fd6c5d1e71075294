package security

import (
	"errors"
	"fmt"
)

// ErrAuthentication is returned when neither the user nor the owner
// password unlocks an encrypted document.
var ErrAuthentication = errors.New("security: incorrect password")

// ErrUnsupported reports an encryption scheme this package cannot handle.
var ErrUnsupported = errors.New("security: unsupported encryption")

// ConfigError reports an invalid combination of encryption settings.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid encryption config: %s", e.Reason) }
