// Package buildinfo provides build-time properties injected via ldflags:
//
//	go build -ldflags "-X github.com/nomis52/countbridge/buildinfo.version=v1.2.0"
package buildinfo

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Package-level variables for ldflags injection (unexported).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// String formats the properties for --version output.
func (p Properties) String() string {
	return p.Version + " (commit " + p.GitCommit + ", built " + p.BuildTime + ")"
}
