package cmd

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/cache"
	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/runtime"
)

type contextKey struct{}

// WithContext returns a context carrying ktx.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, _ := ctx.Value(contextKey{}).(*kong.Context)

	return ktx
}

// Engine holds the caches and logger shared by every component a command
// loads.
type Engine struct {
	Components  *cache.Cache
	Expressions *binding.Cache
	Logger      log.Logger
	Stats       bool
}

type engineKey struct{}

// WithEngine returns a context carrying e.
func WithEngine(ctx context.Context, e *Engine) context.Context {
	return context.WithValue(ctx, engineKey{}, e)
}

// engineFrom returns the engine stored in ctx, or a new one with default
// caches.
func engineFrom(ctx context.Context) *Engine {
	if e, ok := ctx.Value(engineKey{}).(*Engine); ok && e != nil {
		return e
	}

	return &Engine{
		Components:  cache.New(),
		Expressions: binding.NewCache(),
		Logger:      log.Default(),
	}
}

// Runtime returns a runtime sharing the engine's caches.
func (e *Engine) Runtime(opts ...runtime.Option) *runtime.Runtime {
	return runtime.New(append([]runtime.Option{
		runtime.WithCache(e.Components),
		runtime.WithExpressionCache(e.Expressions),
		runtime.WithLogger(e.Logger),
	}, opts...)...)
}

// Close logs cache statistics when requested and releases both caches.
func (e *Engine) Close(ctx context.Context) {
	if e.Stats {
		e.Logger.InfoContext(ctx, "cache statistics",
			slog.Any("components", e.Components.Stats()),
			slog.Any("expressions", e.Expressions.Stats()))
	}

	e.Components.Shutdown()
	e.Expressions.Shutdown()
}

// fileKey identifies a file by device and inode, so the same file reached
// through different paths or symlinks is collected once.
type fileKey struct {
	dev uint64
	ino uint64
}

func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true
}

// collect expands paths into the component files they name. Directories
// are walked for files with a component extension. Each file appears once,
// in the order first reached.
func collect(paths []string) ([]string, error) {
	var (
		out  []string
		seen = map[fileKey]struct{}{}
	)

	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return ErrSource.Wrap(err).With(slog.String("path", path))
		}

		info, err := os.Stat(resolved)
		if err != nil {
			return ErrSource.Wrap(err).With(slog.String("path", path))
		}

		if key, ok := makeFileKey(info); ok {
			if _, dup := seen[key]; dup {
				return nil
			}

			seen[key] = struct{}{}
		} else if slices.Contains(out, resolved) {
			return nil
		}

		out = append(out, abs)

		return nil
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, ErrSource.Wrap(err).With(slog.String("path", p))
		}

		if !info.IsDir() {
			if err := add(p); err != nil {
				return nil, err
			}

			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() || !slices.Contains(cache.Extensions, filepath.Ext(path)) {
				return nil
			}

			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}

	if len(out) == 0 {
		return nil, ErrSource.With(slog.Any("paths", paths))
	}

	return out, nil
}
