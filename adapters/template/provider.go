package snapshottemplate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Definition describes one document kind.
type Definition struct {
	Source       string
	RootSelector string
	Width        int
	Height       int
	BaseURL      string
	Overrides    []snapshot.StyleOverride
	// Defaults are merged under the caller data on every render.
	Defaults map[string]any
}

type entry struct {
	def  Definition
	tmpl *pongo2.Template
}

// Provider renders documents by kind.
type Provider struct {
	mu        sync.RWMutex
	templates map[string]entry
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{templates: make(map[string]entry)}
}

// NewDefaultProvider creates a provider with the built-in flyer kind.
func NewDefaultProvider() *Provider {
	p := NewProvider()
	if err := p.Register(FlyerKind, FlyerDefinition()); err != nil {
		panic(err)
	}
	return p
}

// Register compiles and stores a template for kind.
func (p *Provider) Register(kind string, def Definition) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return snapshot.NewError(snapshot.KindValidation, "document kind is required", nil)
	}
	if def.Width <= 0 || def.Height <= 0 {
		return snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("document kind %q needs a positive size", kind), nil)
	}
	if strings.TrimSpace(def.RootSelector) == "" {
		return snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("document kind %q needs a root selector", kind), nil)
	}
	tmpl, err := pongo2.FromString(def.Source)
	if err != nil {
		return snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("compile template for %q", kind), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.templates == nil {
		p.templates = make(map[string]entry)
	}
	if _, exists := p.templates[kind]; exists {
		return snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("document kind %q already registered", kind), nil)
	}
	p.templates[kind] = entry{def: def, tmpl: tmpl}
	return nil
}

// Kinds returns registered kinds in order.
func (p *Provider) Kinds() []string {
	p.mu.RLock()
	kinds := make([]string, 0, len(p.templates))
	for kind := range p.templates {
		kinds = append(kinds, kind)
	}
	p.mu.RUnlock()
	sort.Strings(kinds)
	return kinds
}

// Render executes the template for kind and returns the document.
func (p *Provider) Render(ctx context.Context, kind, ref string, data map[string]any) (snapshot.VisualDocument, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.VisualDocument{}, err
	}
	p.mu.RLock()
	e, ok := p.templates[kind]
	p.mu.RUnlock()
	if !ok {
		return snapshot.VisualDocument{}, snapshot.NewError(snapshot.KindNotFound, fmt.Sprintf("document kind %q not registered", kind), nil)
	}

	tplCtx := pongo2.Context{}
	for k, v := range e.def.Defaults {
		tplCtx[k] = v
	}
	for k, v := range data {
		tplCtx[k] = v
	}
	tplCtx["width"] = e.def.Width
	tplCtx["height"] = e.def.Height

	out, err := e.tmpl.ExecuteBytes(tplCtx)
	if err != nil {
		return snapshot.VisualDocument{}, snapshot.NewError(snapshot.KindValidation, fmt.Sprintf("render template for %q", kind), err)
	}

	return snapshot.VisualDocument{
		Ref:          ref,
		Kind:         kind,
		HTML:         out,
		RootSelector: e.def.RootSelector,
		BaseURL:      e.def.BaseURL,
		Width:        e.def.Width,
		Height:       e.def.Height,
		Overrides:    append([]snapshot.StyleOverride(nil), e.def.Overrides...),
	}, nil
}
