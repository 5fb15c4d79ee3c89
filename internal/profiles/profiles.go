// Package profiles provides named port-set profiles for portwarden.
// A profile maps a short name like "web" or "full" to the port list a
// scan should cover, so the CLI and API accept profile names wherever
// they accept explicit port specs.
package profiles

import (
	"sort"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/scanning"
)

// Profile is a named port set.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// PortSpec is the spec string understood by scanning.ParsePorts.
	PortSpec string `json:"port_spec"`
}

// builtin profiles, keyed by name.
var builtin = map[string]Profile{
	"default": {
		Name:        "default",
		Description: "Well-known services plus ports 1-1000",
		PortSpec:    "default",
	},
	"quick": {
		Name:        "quick",
		Description: "A handful of the most commonly exposed ports",
		PortSpec:    "21,22,23,25,53,80,110,143,443,445,3306,3389,5432,8080,8443",
	},
	"full": {
		Name:        "full",
		Description: "Every TCP port",
		PortSpec:    "1-65535",
	},
	"web": {
		Name:        "web",
		Description: "HTTP and related application ports",
		PortSpec:    "80,443,8000,8008,8080,8081,8088,8443,8888,9000,9090",
	},
	"database": {
		Name:        "database",
		Description: "Common database server ports",
		PortSpec:    "1433,1521,3306,5432,6379,9042,11211,27017,27018",
	},
	"mail": {
		Name:        "mail",
		Description: "Mail transfer and retrieval ports",
		PortSpec:    "25,110,143,465,587,993,995",
	},
}

// Get returns a built-in profile by name.
func Get(name string) (Profile, error) {
	profile, ok := builtin[name]
	if !ok {
		return Profile{}, errors.NewScanError(errors.CodeValidation,
			"unknown scan profile: "+name)
	}
	return profile, nil
}

// Exists reports whether a profile name is defined.
func Exists(name string) bool {
	_, ok := builtin[name]
	return ok
}

// List returns all built-in profiles sorted by name.
func List() []Profile {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, builtin[name])
	}
	return profiles
}

// Ports resolves a profile name to its port list.
func Ports(name string) ([]uint16, error) {
	profile, err := Get(name)
	if err != nil {
		return nil, err
	}
	return scanning.ParsePorts(profile.PortSpec)
}
