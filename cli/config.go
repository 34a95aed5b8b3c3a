package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/quill/lang"
)

// ErrConfig reports a configuration file that is not a YAML mapping.
var ErrConfig = lang.NewError("invalid configuration file")

// loadConfig is a [kong.ConfigurationLoader] reading the YAML
// configuration file. A key names a flag either flat or nested by flag
// group, and underscores may stand in for hyphens:
//
//	log-level: debug
//	log:
//	  pretty: false
//	cache:
//	  max_entries: 256
//
// Command-line flags override the file.
func loadConfig(r io.Reader) (kong.Resolver, error) {
	var doc map[string]any

	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return config{}, nil
		}

		return nil, ErrConfig.Wrap(err)
	}

	c := config{}
	c.flatten("", doc)

	return c, nil
}

// config implements [kong.Resolver] over flattened flag names.
type config map[string]any

func (c config) flatten(prefix string, m map[string]any) {
	for k, v := range m {
		name := prefix + strings.ReplaceAll(k, "_", "-")

		switch v := v.(type) {
		case map[string]any:
			c.flatten(name+"-", v)
		case string, bool, []any, nil:
			c[name] = v
		default:
			// kong parses numbers from their text.
			c[name] = fmt.Sprint(v)
		}
	}
}

// Validate implements [kong.Resolver].
func (config) Validate(*kong.Application) error { return nil }

// Resolve implements [kong.Resolver].
func (c config) Resolve(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
	if v, ok := c[flag.Name]; ok {
		return v, nil
	}

	return nil, nil
}
