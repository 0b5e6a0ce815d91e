// Package snapshottemplate renders visual documents from pongo2 templates.
//
// Each document kind owns one template plus its authored pixel box and root
// selector. Render executes the template with caller data and returns a
// snapshot.VisualDocument ready for export. Templates use Django/Pongo2 syntax
// with HTML autoescaping enabled.
//
// NewDefaultProvider registers the built-in "flyer" kind: a co-branded
// 612x792 flyer with a headline, a body, two logos and a contact block.
package snapshottemplate
