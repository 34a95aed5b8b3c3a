//nolint:gochecknoglobals
package pkg

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the semantic version of the quill module embedded at build
// time.
var Version = strings.TrimSpace(version)

const (
	// Name is the command name. It appears in help text and names the
	// configuration and cache directories.
	Name = "quill"
	// Description is a short summary of the project used in help output.
	Description = "Markup component interpreter and transpiler"
	// ConfigFile is the base name of the configuration file.
	ConfigFile = "config.yaml"
)

// AuthorInfo is an author's name and email address.
type AuthorInfo struct {
	Name  string
	Email string
}

// Author lists the primary author(s) of the project.
//
//nolint:gochecknoglobals
var Author = []AuthorInfo{
	{"ardnew", "andrew@ardnew.com"},
}
