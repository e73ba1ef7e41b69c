// Package obslog is the module's single logging entrypoint: a named,
// leveled hclog.Logger per component, constructed explicitly and
// passed in rather than reached for as a package-level global.
package obslog

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// root is the module's base logger. Call New to get a named
// sub-logger for a specific component ("bashpolicy", "planvm",
// "agentloop", ...) rather than logging against root directly.
var root = hclog.New(&hclog.LoggerOptions{
	Name:   "agentcore",
	Level:  defaultLevel(),
	Output: os.Stderr,
})

// defaultLevel honors DEBUG=1 / VERBOSE=1; absent either, the default
// level is Info.
func defaultLevel() hclog.Level {
	if os.Getenv("DEBUG") == "1" || os.Getenv("VERBOSE") == "1" {
		return hclog.Debug
	}
	return hclog.Info
}

// New returns a named logger for one component, sharing root's level
// and output.
func New(component string) hclog.Logger {
	return root.Named(component)
}
