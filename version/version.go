package version

import (
	"fmt"
	"runtime"

	"github.com/mattn/go-sqlite3"
)

// Set with -ldflags "-X github.com/teranos/pulsebatch/version.Version=..." at release.
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info describes the pulsebatch binary and the SQLite library it executes
// statements with. Statement support (json_each, RETURNING, UPSERT) depends on
// the SQLite version, so it is reported alongside the build.
type Info struct {
	Version       string `json:"version"`
	CommitHash    string `json:"commit_hash"`
	BuildTime     string `json:"build_time"`
	SQLiteVersion string `json:"sqlite_version"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

func Get() Info {
	sqliteVersion, _, _ := sqlite3.Version()
	return Info{
		Version:       Version,
		CommitHash:    CommitHash,
		BuildTime:     BuildTime,
		SQLiteVersion: sqliteVersion,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("pulsebatch %s (commit %s, built %s, sqlite %s)",
		i.Version, i.Short(), i.BuildTime, i.SQLiteVersion)
}

// Short is the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
