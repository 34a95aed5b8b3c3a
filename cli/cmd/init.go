package cmd

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/quill/profile"
)

// Init writes the configuration file with the current flag values.
type Init struct {
	Force bool `help:"Overwrite an existing configuration file." short:"f"`
}

// Run executes the init command.
func (i *Init) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ktx := kongContextFrom(ctx)

	path, ok := ktx.Model.Vars()[ConfigIdentifier]
	if !ok {
		panic("internal error: configuration path undefined")
	}

	if _, err := os.Stat(path); err == nil && !i.Force {
		return ErrWriteConfig.
			With(slog.String("file", path)).
			Wrap(ErrFileExists)
	}

	b, err := yaml.MarshalWithOptions(settings(ktx), yaml.Indent(2))
	if err != nil {
		return ErrYAMLMarshal.Wrap(err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return ErrWriteConfig.
			With(slog.String("file", path)).
			Wrap(err)
	}

	engineFrom(ctx).Logger.DebugContext(ctx, "initialized configuration file",
		slog.String("path", path))

	return nil
}

// settings returns the global flags with their current values, grouped
// by flag group in declaration order.
func settings(ktx *kong.Context) yaml.MapSlice {
	var (
		out    yaml.MapSlice
		groups = map[string]int{}
	)

	for _, flag := range ktx.Model.Flags {
		if flag.Hidden || flag.Name == "help" || strings.HasPrefix(flag.Name, profile.Tag) {
			continue
		}

		v := ktx.FlagValue(flag)
		if s, ok := v.(string); ok && s == "" {
			continue
		}

		if flag.Group == nil {
			out = append(out, yaml.MapItem{Key: flag.Name, Value: v})

			continue
		}

		key := strings.TrimPrefix(flag.Name, flag.Group.Key+"-")

		idx, ok := groups[flag.Group.Key]
		if !ok {
			idx = len(out)
			groups[flag.Group.Key] = idx
			out = append(out, yaml.MapItem{Key: flag.Group.Key, Value: yaml.MapSlice{}})
		}

		group, _ := out[idx].Value.(yaml.MapSlice)
		out[idx].Value = append(group, yaml.MapItem{Key: key, Value: v})
	}

	slices.SortStableFunc(out, func(a, b yaml.MapItem) int {
		_, ga := a.Value.(yaml.MapSlice)
		_, gb := b.Value.(yaml.MapSlice)

		switch {
		case ga == gb:
			return 0
		case gb:
			return -1
		default:
			return 1
		}
	})

	return out
}
