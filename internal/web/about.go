package web

import (
	"runtime"
	"runtime/debug"
)

// About describes the running binary.
type About struct {
	Service    string `json:"service"`
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

func readAbout() About {
	a := About{Service: serviceName, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return a
	}
	a.ModulePath = bi.Main.Path
	a.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			a.Commit = s.Value
		case "vcs.modified":
			a.Dirty = s.Value == "true"
		case "vcs.time":
			a.BuildTime = s.Value
		}
	}
	return a
}
