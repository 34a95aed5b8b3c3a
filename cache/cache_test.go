package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardnew/quill/lang"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()

	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatal(err)
	}
}

func TestCache_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "a.q", `<p>{x}</p>`)

	c := New()

	first, err := c.GetOrParse(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	second, err := c.GetOrParse(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Error("unmodified file was parsed twice")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss, 1 entry", st)
	}

	if st.Memory <= 0 {
		t.Errorf("memory estimate = %d, want > 0", st.Memory)
	}
}

func TestCache_ModifiedFileIsReparsed(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "a.q", `<p>one</p>`)
	touch(t, path, time.Now().Add(-time.Hour))

	c := New()

	before, err := c.GetOrParse(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Dir(path), "a.q", `<p>two</p><p>three</p>`)
	touch(t, path, time.Now())

	after, err := c.GetOrParse(ctx, path)
	if err != nil {
		t.Fatal(err)
	}

	if before == after {
		t.Fatal("stale tree returned after modification")
	}

	if len(after.Body) != 2 {
		t.Errorf("refreshed tree has %d nodes, want 2", len(after.Body))
	}

	if st := c.Stats(); st.Misses != 2 || st.Entries != 1 {
		t.Errorf("stats = %+v, want 2 misses and the entry refreshed in place", st)
	}
}

func TestCache_VanishedFile(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "a.q", `<p/>`)

	c := New()

	if _, err := c.GetOrParse(ctx, path); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	_, err := c.GetOrParse(ctx, path)

	var nf *lang.NotFoundError
	if !errors.As(err, &nf) || nf.Path != path {
		t.Fatalf("error = %v, want NotFoundError for %s", err, path)
	}

	if c.Len() != 0 {
		t.Error("entry for a vanished file was kept")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.q", `a`)
	b := writeFile(t, dir, "b.q", `b`)
	d := writeFile(t, dir, "d.q", `d`)

	c := New(WithMaxEntries(2))

	for _, p := range []string{a, b, a, d} {
		if _, err := c.GetOrParse(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if st := c.Stats(); st.Evictions != 1 || st.Entries != 2 {
		t.Fatalf("stats = %+v, want one eviction", st)
	}

	// b was least recently used; a must still be cached.
	hits := c.Stats().Hits

	if _, err := c.GetOrParse(ctx, a); err != nil {
		t.Fatal(err)
	}

	if c.Stats().Hits != hits+1 {
		t.Error("recently used entry was evicted")
	}

	if c.Invalidate(b) {
		t.Error("evicted entry reported as present")
	}
}

func TestCache_InvalidateClearShutdown(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "a.q", `<p/>`)

	c := New()

	if _, err := c.GetOrParse(ctx, path); err != nil {
		t.Fatal(err)
	}

	if !c.Invalidate(path) {
		t.Error("Invalidate reported no entry")
	}

	if st := c.Stats(); st.Invalidations != 1 || st.Entries != 0 || st.Memory != 0 {
		t.Errorf("stats after invalidate = %+v", st)
	}

	if _, err := c.GetOrParse(ctx, path); err != nil {
		t.Fatal(err)
	}

	c.Clear()

	if c.Len() != 0 {
		t.Error("Clear left entries")
	}

	c.Shutdown()

	if _, err := c.GetOrParse(ctx, path); !errors.Is(err, ErrClosed) {
		t.Errorf("error after shutdown = %v, want ErrClosed", err)
	}
}

func TestCache_ConcurrentMissParsesOnce(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "a.q", `<p>{x}</p>`)

	var calls atomic.Int32

	c := New(WithParser(func(ctx context.Context, p string) (*lang.Component, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)

		return lang.ParseFile(ctx, p)
	}))

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := c.GetOrParse(ctx, path); err != nil {
				t.Error(err)
			}
		}()
	}

	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("parser called %d times, want 1", n)
	}

	if st := c.Stats(); st.Hits+st.Misses == 0 || st.Misses != 1 {
		t.Errorf("stats = %+v, want exactly one miss", st)
	}
}

func TestCache_SyntaxErrorNotCached(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "bad.q", `<div>`)

	c := New()

	if _, err := c.GetOrParse(ctx, path); !errors.Is(err, lang.ErrSyntax) {
		t.Fatalf("error = %v, want syntax error", err)
	}

	if c.Len() != 0 {
		t.Error("failed parse was cached")
	}
}

func TestResolve_Suggestions(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "page.q", `<q:import component="crd"/>`)
	writeFile(t, dir, "card.q", `card`)
	writeFile(t, dir, "cart.q", `cart`)
	writeFile(t, dir, "header.q", `header`)

	got, err := Resolve(page, "card")
	if err != nil || got != filepath.Join(dir, "card.q") {
		t.Fatalf("Resolve(card) = %q, %v", got, err)
	}

	_, err = Resolve(page, "crd")
	if !errors.Is(err, lang.ErrComponentNotFound) {
		t.Fatalf("error = %v, want ErrComponentNotFound", err)
	}

	var cnf *lang.ComponentNotFoundError
	if !errors.As(err, &cnf) {
		t.Fatalf("error %T is not a ComponentNotFoundError", err)
	}

	if !slices.Contains(cnf.Suggestions, "card") || slices.Contains(cnf.Suggestions, "header") {
		t.Errorf("suggestions = %v, want card and not header", cnf.Suggestions)
	}
}

func TestCache_LoadFollowsImports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := os.Mkdir(filepath.Join(dir, "parts"), 0o700); err != nil {
		t.Fatal(err)
	}

	page := writeFile(t, dir, "page.q", `<q:import component="parts/card" as="Card"/><p/>`)
	writeFile(t, filepath.Join(dir, "parts"), "card.q", `<q:import component="../page"/><div/>`)

	c := New()

	b, err := c.Load(ctx, page)
	if err != nil {
		t.Fatal(err)
	}

	if n := len(b.Components()); n != 2 {
		t.Fatalf("bundle has %d components, want 2", n)
	}

	card, ok := b.Lookup(b.Root, "Card")
	if !ok || card.Name != "card" {
		t.Fatalf("Lookup(Card) = %v, %v", card, ok)
	}

	back, ok := b.Lookup(card, "page")
	if !ok || back != b.Root {
		t.Error("import cycle not resolved to the cached root")
	}

	writeFile(t, dir, "broken.q", `<q:import component="nowhere"/>`)

	if _, err := c.Load(ctx, filepath.Join(dir, "broken.q")); !errors.Is(err, lang.ErrComponentNotFound) {
		t.Errorf("error = %v, want ErrComponentNotFound", err)
	}
}

func BenchmarkCache_Hit(b *testing.B) {
	ctx := context.Background()
	path := filepath.Join(b.TempDir(), "a.q")

	if err := os.WriteFile(path, []byte(`<p>{x}</p>`), 0o600); err != nil {
		b.Fatal(err)
	}

	c := New()

	for b.Loop() {
		if _, err := c.GetOrParse(ctx, path); err != nil {
			b.Fatal(err)
		}
	}
}
