// Package buildinfo carries the running build identity.
//
// Values are set at link time:
//
//	go build -ldflags "-X issuebot/internal/buildinfo.Version=1.4.0 -X issuebot/internal/buildinfo.Homepage=https://example.org/issuebot"
package buildinfo

var (
	Name     = "issuebot"
	Version  = "dev"
	Homepage = ""
)

// Info is a snapshot of the build identity.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Homepage string `json:"homepage,omitempty"`
}

func Current() Info {
	return Info{Name: Name, Version: Version, Homepage: Homepage}
}

// Footer renders "name vVERSION - homepage", dropping the homepage when unset.
func (i Info) Footer() string {
	s := i.Name + " v" + i.Version
	if i.Homepage != "" {
		s += " - " + i.Homepage
	}
	return s
}
