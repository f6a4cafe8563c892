// Package version reports the build version. Version is set at build time:
//
//	go build -ldflags "-X github.com/ramonehamilton/binder-companion/internal/version.Version=v0.3.0"
package version

import (
	"runtime"
	"runtime/debug"
)

// Version defaults to "dev".
var Version = "dev"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the version together with the VCS data embedded by the Go
// toolchain, when present.
func Get() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range build.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
