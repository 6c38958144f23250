package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockAtoms start a new line in rendered text. Table cells are included so
// "Status | Active" rows render as separate lines for pattern rules.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tbody: true, atom.Td: true, atom.Tfoot: true, atom.Th: true, atom.Thead: true,
	atom.Tr: true, atom.Ul: true,
}

var skipAtoms = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Svg: true, atom.Iframe: true,
}

var formControlAtoms = map[atom.Atom]bool{
	atom.Label: true, atom.Option: true, atom.Select: true, atom.Button: true,
	atom.Textarea: true, atom.Legend: true, atom.Datalist: true,
}

func skipForms(n *html.Node) bool {
	return n.DataAtom == atom.Form || formControlAtoms[n.DataAtom]
}

func skipFormControls(n *html.Node) bool {
	return formControlAtoms[n.DataAtom]
}

// renderText flattens a parsed document into trimmed, non-empty lines.
// Elements for which skip returns true are left out with their subtree.
func renderText(root *html.Node, skip func(*html.Node) bool) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipAtoms[n.DataAtom] || (skip != nil && skip(n)) {
				return
			}
			if blockAtoms[n.DataAtom] {
				b.WriteByte('\n')
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = collapse(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// collapse trims s and folds internal whitespace (nbsp included) to single
// spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
