package handlers

import (
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
)

// AppName is reported by /version.
const AppName = "minisuite"

// BuildInfo is the metadata stamped into the binary at build time.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var (
	buildMu sync.RWMutex
	build   = BuildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo records build metadata; main calls it before serving.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build = BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// CurrentBuild returns the recorded build metadata.
func CurrentBuild() BuildInfo {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return build
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Name    string            `json:"name"`
	Build   BuildInfo         `json:"build"`
	Go      string            `json:"go"`
	Libs    map[string]string `json:"libs"`
	Runtime RuntimeInfo       `json:"runtime"`
}

// RuntimeInfo describes the running process.
type RuntimeInfo struct {
	Platform   string `json:"platform"`
	NumCPU     int    `json:"num_cpu"`
	Goroutines int    `json:"goroutines"`
}

// CurrentVersion assembles build, library and runtime details.
func CurrentVersion() VersionResponse {
	libs := crucible.GetVersion()
	return VersionResponse{
		Name:  AppName,
		Build: CurrentBuild(),
		Go:    runtime.Version(),
		Libs: map[string]string{
			"gofulmen": libs.Gofulmen,
			"crucible": libs.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:   runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:     runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
		},
	}
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentVersion())
}
