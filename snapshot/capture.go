package snapshot

import (
	"bytes"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SurfaceElementID is the id of the fixed-size capture container.
const SurfaceElementID = "snapshot-surface"

// BuildCapture clones the document root into an isolated host page sized
// exactly to the authored pixel box. The source markup is never modified.
func BuildCapture(doc VisualDocument, background color.RGBA) (CaptureDocument, error) {
	if len(bytes.TrimSpace(doc.HTML)) == 0 {
		return CaptureDocument{}, NewError(KindCapture, "document markup is empty", nil)
	}
	if doc.Width <= 0 || doc.Height <= 0 {
		return CaptureDocument{}, NewError(KindCapture, fmt.Sprintf("document size %dx%d is invalid", doc.Width, doc.Height), nil)
	}
	sel, err := parseSelector(doc.RootSelector)
	if err != nil {
		return CaptureDocument{}, err
	}

	tree, err := html.Parse(bytes.NewReader(doc.HTML))
	if err != nil {
		return CaptureDocument{}, NewError(KindCapture, "parse document markup", err)
	}

	root := findFirst(tree, sel.matches)
	if root == nil {
		return CaptureDocument{}, NewError(KindCapture, fmt.Sprintf("root %q not found", doc.RootSelector), nil)
	}

	clone := cloneNode(root)
	stripScripts(clone)
	applyOverrides(clone, mergeOverrides(DefaultOverrides, doc.Overrides))
	images := collectImages(clone)

	var head bytes.Buffer
	head.WriteString(`<meta charset="utf-8">`)
	hasBase := false
	for _, n := range collectHeadAssets(tree, root) {
		if n.DataAtom == atom.Base {
			if hasBase {
				continue
			}
			hasBase = true
		}
		if err := html.Render(&head, cloneNode(n)); err != nil {
			return CaptureDocument{}, NewError(KindCapture, "render head assets", err)
		}
	}
	if !hasBase && doc.BaseURL != "" {
		head.WriteString(`<base href="` + html.EscapeString(doc.BaseURL) + `">`)
	}
	fmt.Fprintf(&head, `<style>html,body{margin:0;padding:0;background:transparent;}`+
		`#%s{position:fixed;left:0;top:0;margin:0;padding:0;border:0;box-sizing:border-box;`+
		`width:%dpx;height:%dpx;overflow:hidden;pointer-events:none;background:%s;}`+
		`#%s img.snapshot-broken{visibility:hidden;}</style>`,
		SurfaceElementID, doc.Width, doc.Height, cssColor(background), SurfaceElementID)

	var body bytes.Buffer
	if err := html.Render(&body, clone); err != nil {
		return CaptureDocument{}, NewError(KindCapture, "render capture clone", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html><html><head>")
	out.Write(head.Bytes())
	out.WriteString(`</head><body><div id="` + SurfaceElementID + `">`)
	out.Write(body.Bytes())
	out.WriteString("</div></body></html>")

	return CaptureDocument{
		HTML:       out.Bytes(),
		Width:      doc.Width,
		Height:     doc.Height,
		Images:     images,
		Background: background,
	}, nil
}

type selector struct {
	tag   string
	id    string
	class string
}

func parseSelector(raw string) (selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return selector{}, NewError(KindValidation, "root selector is required", nil)
	}
	if strings.ContainsAny(raw, " >+~[]:,*") {
		return selector{}, NewError(KindValidation, fmt.Sprintf("unsupported root selector %q", raw), nil)
	}

	var sel selector
	switch idx := strings.IndexAny(raw, "#."); {
	case idx < 0:
		sel.tag = raw
	default:
		sel.tag = raw[:idx]
		rest := raw[idx+1:]
		if rest == "" || strings.ContainsAny(rest, "#.") {
			return selector{}, NewError(KindValidation, fmt.Sprintf("unsupported root selector %q", raw), nil)
		}
		if raw[idx] == '#' {
			sel.id = rest
		} else {
			sel.class = rest
		}
	}
	sel.tag = strings.ToLower(sel.tag)
	return sel, nil
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attr(n, "id") != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func cloneNode(n *html.Node) *html.Node {
	out := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		out.Attr = make([]html.Attribute, len(n.Attr))
		copy(out.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(cloneNode(c))
	}
	return out
}

func stripScripts(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && c.DataAtom == atom.Script {
			n.RemoveChild(c)
		} else {
			stripScripts(c)
		}
		c = next
	}
}

func mergeOverrides(base, extra []StyleOverride) []StyleOverride {
	out := make([]StyleOverride, 0, len(base)+len(extra))
	index := map[string]int{}
	for _, list := range [][]StyleOverride{base, extra} {
		for _, o := range list {
			prop := strings.ToLower(strings.TrimSpace(o.Property))
			if prop == "" {
				continue
			}
			o.Property = prop
			if i, ok := index[prop]; ok {
				out[i] = o
				continue
			}
			index[prop] = len(out)
			out = append(out, o)
		}
	}
	return out
}

// applyOverrides rewrites the inline style so overrides win over both the
// existing inline declarations and stylesheet rules.
func applyOverrides(n *html.Node, overrides []StyleOverride) {
	if len(overrides) == 0 {
		return
	}
	skip := map[string]bool{}
	for _, o := range overrides {
		skip[o.Property] = true
	}

	decls := []string{}
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop, _, _ := strings.Cut(decl, ":")
		if skip[strings.ToLower(strings.TrimSpace(prop))] {
			continue
		}
		decls = append(decls, decl)
	}
	for _, o := range overrides {
		decls = append(decls, o.Property+": "+strings.TrimSpace(o.Value)+" !important")
	}
	setAttr(n, "style", strings.Join(decls, "; "))
}

func collectImages(n *html.Node) []ImageRef {
	seen := map[string]bool{}
	out := []ImageRef{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			src := strings.TrimSpace(attr(n, "src"))
			if src != "" && !seen[src] {
				seen[src] = true
				out = append(out, ImageRef{Src: src})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// collectHeadAssets returns style, stylesheet link and base nodes outside the
// capture root, in document order.
func collectHeadAssets(tree, root *html.Node) []*html.Node {
	out := []*html.Node{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == root {
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Style, atom.Base:
				out = append(out, n)
				return
			case atom.Link:
				if strings.EqualFold(strings.TrimSpace(attr(n, "rel")), "stylesheet") {
					out = append(out, n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tree)
	return out
}

func cssColor(c color.RGBA) string {
	alpha := strconv.FormatFloat(float64(c.A)/255, 'f', 3, 64)
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", c.R, c.G, c.B, alpha)
}
