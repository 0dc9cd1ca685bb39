// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

import (
	"runtime"

	"github.com/google/uuid"
)

// Set with -ldflags "-X github.com/maia-sdr/spectrometerd/internal/buildinfo.Version=..."
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// InstanceID identifies this process in telemetry and MQTT status
	// messages. It changes on every start.
	InstanceID string

	GoVersion string
}

// New returns the build context of the running binary.
func New() *Context {
	return &Context{
		Version:    Version,
		BuildDate:  BuildDate,
		InstanceID: uuid.NewString(),
		GoVersion:  runtime.Version(),
	}
}

// Release returns the release name used for error reports.
func (c *Context) Release() string {
	return "spectrometerd@" + c.Version
}
