package snapshottemplate

import (
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/goliatone/go-snapshot/snapshot"
)

func TestProvider_RenderFlyer(t *testing.T) {
	provider := NewDefaultProvider()

	doc, err := provider.Render(context.Background(), FlyerKind, "flyer-1", map[string]any{
		"headline":     "Spring <Open> House",
		"body":         "Saturday 10am\nSunday 12pm",
		"primary_logo": "https://cdn.example.com/acme.png",
		"partner_logo": "https://cdn.example.com/lender.png",
		"contact_name": "Sam Rivera",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if doc.Ref != "flyer-1" || doc.Kind != FlyerKind {
		t.Fatalf("unexpected identity %q %q", doc.Ref, doc.Kind)
	}
	if doc.Width != 612 || doc.Height != 792 || doc.RootSelector != "#flyer" {
		t.Fatalf("unexpected box %dx%d %q", doc.Width, doc.Height, doc.RootSelector)
	}
	html := string(doc.HTML)
	if !strings.Contains(html, "Spring &lt;Open&gt; House") {
		t.Fatalf("expected escaped headline in %s", html)
	}
	if !strings.Contains(html, `<div class="body">Saturday 10am<br />Sunday 12pm</div>`) {
		t.Fatalf("expected line breaks in body, got %s", html)
	}
	if !strings.Contains(html, "width: 612px") {
		t.Fatalf("expected authored width in styles")
	}

	capture, err := snapshot.BuildCapture(doc, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	if err != nil {
		t.Fatalf("build capture: %v", err)
	}
	if len(capture.Images) != 2 || capture.Images[0].Src != "https://cdn.example.com/acme.png" {
		t.Fatalf("expected logos in order, got %+v", capture.Images)
	}
}

func TestProvider_RenderFlyerEscapesBody(t *testing.T) {
	doc, err := NewDefaultProvider().Render(context.Background(), FlyerKind, "flyer-1", map[string]any{
		"body": "<script>alert(1)</script>\nTom & Jerry",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	html := string(doc.HTML)
	if strings.Contains(html, "<script>alert") {
		t.Fatalf("expected body markup escaped in %s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;alert(1)&lt;/script&gt;<br />Tom &amp; Jerry") {
		t.Fatalf("expected escaped body with line break, got %s", html)
	}
}

func TestProvider_CallerDataOverridesDefaults(t *testing.T) {
	doc, err := NewDefaultProvider().Render(context.Background(), FlyerKind, "flyer-2", map[string]any{"accent": "#ff0000"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(doc.HTML), "2px solid #ff0000") {
		t.Fatalf("expected caller accent")
	}
}

func TestProvider_Errors(t *testing.T) {
	provider := NewProvider()

	if _, err := provider.Render(context.Background(), "poster", "p-1", nil); snapshot.KindFromError(err) != snapshot.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	cases := map[string]Definition{
		"no size":     {Source: "<div id=x></div>", RootSelector: "#x"},
		"no selector": {Source: "<div></div>", Width: 10, Height: 10},
		"bad syntax":  {Source: "{% if %}", RootSelector: "#x", Width: 10, Height: 10},
	}
	for name, def := range cases {
		if err := provider.Register("poster", def); snapshot.KindFromError(err) != snapshot.KindValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	if err := provider.Register(FlyerKind, FlyerDefinition()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := provider.Register(FlyerKind, FlyerDefinition()); snapshot.KindFromError(err) != snapshot.KindValidation {
		t.Fatalf("expected duplicate rejected, got %v", err)
	}
	if kinds := provider.Kinds(); len(kinds) != 1 || kinds[0] != FlyerKind {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}
