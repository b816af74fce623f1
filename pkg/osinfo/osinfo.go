// Package osinfo resolves a short human-readable description of the host
// operating system.
package osinfo

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownOSType = errors.New("osinfo: unknown OS type")
)

// GetOsName returns the OS description as a single line, e.g.
// "Ubuntu 20.04.1 LTS". Release files and uname output may span lines; the
// result is collapsed because it travels in a query parameter.
func GetOsName() (string, error) {
	name, err := osName()
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(name), " "), nil
}
