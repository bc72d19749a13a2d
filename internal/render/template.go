package render

import (
	"context"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledgerdesk/backoffice/internal/cache"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
)

var templateRef = regexp.MustCompile(`^([a-z0-9][a-z0-9_-]{0,63})(?:@([0-9]{1,6}))?$`)

// Template is a resolved layout file
type Template struct {
	// Name is the reference the template was resolved from
	Name string
	// Version is empty for the unversioned layout
	Version string
	Path    string
	// Ext selects the engine, ".typ" or ".html"
	Ext     string
	Content []byte

	// html is the parsed layout for the html engine
	html *template.Template
}

// ID identifies the exact layout used, for example quote@3
func (t *Template) ID() string {
	base := strings.SplitN(t.Name, "@", 2)[0]
	if t.Version == "" {
		return base
	}
	return base + "@" + t.Version
}

// Resolve finds the template by reference. "quote" selects quote.typ or
// quote.html, falling back to the highest quote@N; "quote@2" selects that
// version exactly. Resolved templates are cached.
func (r *Renderer) Resolve(ctx context.Context, ref string) (*Template, error) {
	key := cache.GenerateKey(cache.PrefixTemplate, ref)
	if v, ok := r.cache.Get(ctx, key); ok {
		if t, ok := v.(*Template); ok {
			return t, nil
		}
	}

	t, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, key, t, 0)
	return t, nil
}

// Invalidate drops cached templates so edited layouts are picked up
func (r *Renderer) Invalidate(ctx context.Context) {
	r.cache.DeleteByPrefix(ctx, cache.PrefixTemplate)
}

func (r *Renderer) resolve(ref string) (*Template, error) {
	m := templateRef.FindStringSubmatch(ref)
	if m == nil {
		return nil, ierr.NewErrorf("invalid template reference %q", ref).
			WithHint("Document template is missing").
			Mark(ierr.ErrTemplateNotFound)
	}
	name, version := m[1], m[2]

	var candidates []string
	if version != "" {
		candidates = r.withEngines(name + "@" + version)
	} else {
		candidates = r.withEngines(name)
		if latest := r.latestVersion(name); latest != "" {
			candidates = append(candidates, r.withEngines(name+"@"+latest)...)
		}
	}

	for _, path := range candidates {
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, ierr.WithError(err).
				WithHint("Document template is unreadable").
				WithReportableDetails(map[string]any{"template": ref}).
				Mark(ierr.ErrSystem)
		}
		t := &Template{
			Name:    ref,
			Version: versionOf(path),
			Path:    path,
			Ext:     filepath.Ext(path),
			Content: content,
		}
		if t.Ext == extHTML {
			if err := r.parseHTML(t); err != nil {
				return nil, err
			}
		}
		return t, nil
	}

	return nil, ierr.NewErrorf("template %s not found in %s", ref, r.opts.Dir).
		WithHint("Document template is missing").
		WithReportableDetails(map[string]any{"template": ref}).
		Mark(ierr.ErrTemplateNotFound)
}

// withEngines lists the candidate files of base in engine registration order
func (r *Renderer) withEngines(base string) []string {
	out := make([]string, 0, len(r.order))
	for _, ext := range r.order {
		out = append(out, filepath.Join(r.opts.Dir, base+ext))
	}
	return out
}

func (r *Renderer) latestVersion(name string) string {
	matches, _ := filepath.Glob(filepath.Join(r.opts.Dir, name+"@*"))
	versions := make([]int, 0, len(matches))
	for _, m := range matches {
		if _, ok := r.engines[filepath.Ext(m)]; !ok {
			continue
		}
		if v, err := strconv.Atoi(versionOf(m)); err == nil {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return ""
	}
	sort.Ints(versions)
	return strconv.Itoa(versions[len(versions)-1])
}

func versionOf(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndexByte(base, '@'); i >= 0 {
		return base[i+1:]
	}
	return ""
}
