// Package version carries the build identity of l4idl. The variables are
// set at link time:
//
//	go build -ldflags "-X l4idl/internal/version.GitCommit=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fatih/color"
)

var (
	// Version is the semantic version of the generator.
	Version = "0.3.0-dev"

	GitCommit  = ""
	GitMessage = ""
	// BuildDate is ISO-8601.
	BuildDate = ""
)

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)
)

// Colored renders Version with each component highlighted. The output is
// plain when color.NoColor is set.
func Colored() string {
	core, suffix, _ := strings.Cut(Version, "-")
	parts := strings.SplitN(core, ".", 3)
	if len(parts) != 3 {
		return Version
	}
	out := majorColor.Sprint(parts[0]) + "." + minorColor.Sprint(parts[1]) + "." + patchColor.Sprint(parts[2])
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}

// Info is the machine-readable build identity.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Message   string `json:"git_message,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Current() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		Message:   GitMessage,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short is the commit hash cut to twelve characters.
func (i Info) Short() string {
	if len(i.GitCommit) > 12 {
		return i.GitCommit[:12]
	}
	return i.GitCommit
}

// Lines renders the identity for `l4idl version`. Empty fields are left
// out.
func (i Info) Lines(colored bool) []string {
	v := i.Version
	if colored {
		v = Colored()
	}
	out := []string{"l4idl " + v}
	if c := i.Short(); c != "" {
		line := "commit " + c
		if i.Message != "" {
			line += " " + firstLine(i.Message)
		}
		out = append(out, line)
	}
	if i.BuildDate != "" {
		out = append(out, "built "+i.BuildDate)
	}
	return append(out, fmt.Sprintf("%s %s", i.GoVersion, i.Platform))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
