package cache

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/ardnew/quill/lang"
)

// Extensions lists the file extensions tried, in order, for an import
// written without one.
var Extensions = []string{".q", ".quill"}

// maxSuggestions bounds the near-miss names reported for a failed import.
const maxSuggestions = 3

// Resolve maps an import name written in the file from to an absolute
// path. Relative names are resolved against the directory of from. An
// unresolvable import yields a *[lang.ComponentNotFoundError] listing
// similarly named components.
func Resolve(from, name string) (string, error) {
	dir := "."
	if from != "" {
		dir = filepath.Dir(from)
	}

	base := filepath.FromSlash(name)
	if !filepath.IsAbs(base) {
		base = filepath.Join(dir, base)
	}

	candidates := []string{base}
	if filepath.Ext(base) == "" {
		for _, ext := range Extensions {
			candidates = append(candidates, base+ext)
		}
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return filepath.Abs(c)
		}
	}

	return "", &lang.ComponentNotFoundError{
		Name:        name,
		From:        from,
		Suggestions: suggest(filepath.Dir(base), name),
	}
}

// suggest ranks the components in dir by similarity to name.
func suggest(dir, name string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	prefix := filepath.ToSlash(filepath.Dir(filepath.FromSlash(name)))
	if prefix == "." {
		prefix = ""
	} else {
		prefix += "/"
	}

	var names []string

	for _, e := range entries {
		if e.IsDir() || !slices.Contains(Extensions, filepath.Ext(e.Name())) {
			continue
		}

		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}

	want := filepath.Base(name)
	want = strings.TrimSuffix(want, filepath.Ext(want))

	var out []string

	for _, m := range fuzzy.Find(want, names) {
		out = append(out, prefix+m.Str)
	}

	// Also offer names that are themselves contained in the request, such
	// as "card" for "cards".
	for _, n := range names {
		if len(fuzzy.Find(n, []string{want})) > 0 && !slices.Contains(out, prefix+n) {
			out = append(out, prefix+n)
		}
	}

	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}

	return out
}

// Bundle is a component together with every component it imports,
// directly or transitively.
type Bundle struct {
	Root *lang.Component

	byPath  map[string]*lang.Component
	aliases map[string]map[string]string
}

// Lookup returns the component that from imports under alias.
func (b *Bundle) Lookup(from *lang.Component, alias string) (*lang.Component, bool) {
	if b == nil || from == nil {
		return nil, false
	}

	path, ok := b.aliases[from.Path][alias]
	if !ok {
		return nil, false
	}

	comp, ok := b.byPath[path]

	return comp, ok
}

// Components returns every component in the bundle ordered by path.
func (b *Bundle) Components() []*lang.Component {
	paths := make([]string, 0, len(b.byPath))
	for p := range b.byPath {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	out := make([]*lang.Component, len(paths))
	for i, p := range paths {
		out[i] = b.byPath[p]
	}

	return out
}

// Load returns the component at path and all of its imports, each served
// through the cache. Import cycles are permitted.
func (c *Cache) Load(ctx context.Context, path string) (*Bundle, error) {
	root, err := c.GetOrParse(ctx, path)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Root:    root,
		byPath:  map[string]*lang.Component{root.Path: root},
		aliases: make(map[string]map[string]string),
	}

	queue := []*lang.Component{root}

	for len(queue) > 0 {
		comp := queue[0]
		queue = queue[1:]

		for _, imp := range comp.Imports {
			target, err := Resolve(comp.Path, imp.Component)
			if err != nil {
				return nil, err
			}

			if b.aliases[comp.Path] == nil {
				b.aliases[comp.Path] = make(map[string]string)
			}

			b.aliases[comp.Path][imp.As] = target

			if _, seen := b.byPath[target]; seen {
				continue
			}

			dep, err := c.GetOrParse(ctx, target)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil, &lang.ComponentNotFoundError{Name: imp.Component, From: comp.Path}
				}

				return nil, err
			}

			b.byPath[target] = dep
			queue = append(queue, dep)
		}
	}

	c.logger.DebugContext(ctx, "bundle loaded",
		slog.String("root", root.Path),
		slog.Int("components", len(b.byPath)))

	return b, nil
}
