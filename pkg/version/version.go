package version

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Metadata describes the running build
type Metadata struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Compiler  string `json:"compiler"`
	Source    string `json:"source,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Hash      string `json:"hash,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Set with -ldflags -X
var (
	GitSource   string
	GitTag      string
	GitBranch   string
	GitHash     string
	GoBuildTime string
)

const (
	dev      = "dev"
	shortRev = 12
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Version returns the git tag, then the branch, then the short VCS
// revision, or "dev" when none is known.
func Version() string {
	switch {
	case GitTag != "":
		return GitTag
	case GitBranch != "":
		return GitBranch
	}
	if rev := setting("vcs.revision"); rev != "" {
		if len(rev) > shortRev {
			return rev[:shortRev]
		}
		return rev
	}
	return dev
}

// Build returns the metadata for the named executable. Values set at link
// time take precedence over the embedded build info.
func Build(execName string) Metadata {
	meta := Metadata{
		Name:      execName,
		Version:   Version(),
		Compiler:  runtime.Version(),
		Source:    GitSource,
		Tag:       GitTag,
		Branch:    GitBranch,
		Hash:      GitHash,
		BuildTime: GoBuildTime,
	}
	if info, ok := debug.ReadBuildInfo(); ok && meta.Source == "" {
		meta.Source = info.Main.Path
	}
	if meta.Hash == "" {
		meta.Hash = setting("vcs.revision")
	}
	if meta.BuildTime == "" {
		meta.BuildTime = setting("vcs.time")
	}
	meta.Modified = setting("vcs.modified") == "true"
	if goos, goarch := setting("GOOS"), setting("GOARCH"); goos != "" && goarch != "" {
		meta.Platform = goos + "/" + goarch
	}
	return meta
}

// JSON returns the indented build metadata for the named executable
func JSON(execName string) []byte {
	data, err := json.MarshalIndent(Build(execName), "", "  ")
	if err != nil {
		panic(err)
	}
	return data
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func setting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
