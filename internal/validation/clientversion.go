// clientversion.go checks the version string browser clients send in X-Client-Version
// against the minimum the server still supports.
package validation

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// ValidateVersion reports whether s is a parseable version such as 1.4.0 or 2.0.0-beta.1
func ValidateVersion(s string) error {
	if _, err := version.NewVersion(s); err != nil {
		return fmt.Errorf("invalid version %q: %w", s, err)
	}
	return nil
}

// ClientSupported reports whether client is at or above minimum. An empty minimum accepts
// every client. Pre-releases of the minimum version itself are rejected.
func ClientSupported(client, minimum string) (bool, error) {
	if minimum == "" {
		return true, nil
	}
	c, err := version.NewVersion(client)
	if err != nil {
		return false, fmt.Errorf("invalid client version %q: %w", client, err)
	}
	constraint, err := version.NewConstraint(">= " + minimum)
	if err != nil {
		return false, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	return constraint.Check(c), nil
}
