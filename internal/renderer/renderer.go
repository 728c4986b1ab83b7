// Package renderer turns a structural model into a documentation artifact
// body: markdown plus a Mermaid diagram description.
//
// Rendering is deterministic: identical models always yield byte-identical
// output. Nothing time- or environment-dependent may enter the body; run
// metadata (generated-at, source revision) lives on the artifact record, not
// in the rendered bytes.
package renderer

import (
	"fmt"
	"strings"

	"github.com/inful/mdfp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
)

// Body is the rendered artifact body.
type Body struct {
	Markdown []byte
	Diagram  string
	// Fingerprint is the content fingerprint of Markdown; viewers use it to
	// skip reloads when a regeneration produced identical output.
	Fingerprint string
	Outline     []Heading
}

// Render produces the documentation body for one structural model. The
// diagram is derived strictly from the model's relation list; the renderer
// invents no relationships of its own. Safe to call concurrently: a
// cases.Caser carries transform state, so each call constructs its own.
func Render(m *analyzer.Model) Body {
	var sb strings.Builder

	title := cases.Title(language.English).String(strings.ReplaceAll(m.Name, "_", " "))
	sb.WriteString("# " + title + "\n\n")
	writeHeaderQuote(&sb, m)
	writeOverview(&sb, m, title)
	writeEntities(&sb, m)
	writeAPI(&sb, m)
	writeDependencies(&sb, m)

	diagram := buildDiagram(m)
	if diagram != "" {
		sb.WriteString("## Architecture\n\n```mermaid\n")
		sb.WriteString(diagram)
		sb.WriteString("```\n")
	}

	markdown := []byte(sb.String())
	return Body{
		Markdown:    markdown,
		Diagram:     diagram,
		Fingerprint: mdfp.CalculateFingerprintFromParts("", string(markdown)),
		Outline:     Outline(markdown),
	}
}

func writeHeaderQuote(sb *strings.Builder, m *analyzer.Model) {
	fmt.Fprintf(sb, "> **Module:** `%s.py`  \n", m.Name)
	if len(m.Classes) > 0 {
		main := m.Classes[0]
		fmt.Fprintf(sb, "> **Class:** `%s`  \n", main.Name)
		if len(main.Bases) > 0 {
			fmt.Fprintf(sb, "> **Base Classes:** `%s`  \n", strings.Join(main.Bases, ", "))
		}
	}
	sb.WriteString("\n")
}

func writeOverview(sb *strings.Builder, m *analyzer.Model, title string) {
	sb.WriteString("## Overview\n\n")
	switch {
	case m.Degraded:
		sb.WriteString("Structural analysis was not possible for this module.\n\n")
		for _, d := range m.Diagnostics {
			sb.WriteString("> " + d + "\n")
		}
		sb.WriteString("\n")
	case m.Docstring != "":
		sb.WriteString(m.Docstring + "\n\n")
	default:
		fmt.Fprintf(sb, "Automation module for %s.\n\n", strings.ToLower(title))
	}
}

func writeEntities(sb *strings.Builder, m *analyzer.Model) {
	if len(m.Entities) == 0 {
		return
	}
	sb.WriteString("## Entities\n\n")
	for _, e := range m.Entities {
		sb.WriteString("- `" + e + "`\n")
	}
	sb.WriteString("\n")
}

func writeAPI(sb *strings.Builder, m *analyzer.Model) {
	if len(m.Classes) == 0 && len(m.Functions) == 0 {
		return
	}
	sb.WriteString("## API\n\n")
	for _, c := range m.Classes {
		fmt.Fprintf(sb, "### %s\n\n", c.Name)
		if c.Docstring != "" {
			sb.WriteString(firstLine(c.Docstring) + "\n\n")
		}
		writeFunctionTable(sb, c.Methods)
	}
	if len(m.Functions) > 0 {
		sb.WriteString("### Module Functions\n\n")
		writeFunctionTable(sb, m.Functions)
	}
}

func writeFunctionTable(sb *strings.Builder, fns []analyzer.Function) {
	if len(fns) == 0 {
		return
	}
	sb.WriteString("| Name | Parameters | Callback | Line |\n")
	sb.WriteString("|------|------------|----------|------|\n")
	for _, fn := range fns {
		callback := ""
		if fn.Callback {
			callback = "yes"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %d |\n",
			fn.Name, formatParams(fn.Params), callback, fn.Line)
	}
	sb.WriteString("\n")
}

func writeDependencies(sb *strings.Builder, m *analyzer.Model) {
	if len(m.Imports) == 0 {
		return
	}
	sb.WriteString("## Dependencies\n\n")
	for _, imp := range m.Imports {
		sb.WriteString("- `" + imp + "`\n")
	}
	sb.WriteString("\n")
}

// buildDiagram translates the model's relation list into a flowchart. Import
// edges are omitted: they describe module-to-library coupling, which the
// Dependencies section already lists.
func buildDiagram(m *analyzer.Model) string {
	d := NewDiagram()
	for _, c := range m.Classes {
		d.AddNode(c.Name, c.Name, ShapeRect)
	}
	for _, r := range m.Relations {
		switch r.Kind {
		case analyzer.RelationContains:
			d.AddNode(r.To, r.To, ShapeRounded)
			d.AddEdge(r.From, r.To, "")
		case analyzer.RelationCalls:
			d.AddNode(r.From, r.From, ShapeRounded)
			d.AddNode(r.To, r.To, ShapeRounded)
			d.AddEdge(r.From, r.To, "calls")
		case analyzer.RelationListens:
			d.AddNode(r.From, r.From, ShapeRounded)
			d.AddNode(r.To, r.To, ShapeRounded)
			d.AddEdge(r.From, r.To, "registers")
		}
	}
	for _, fn := range m.Functions {
		d.AddNode(fn.Name, fn.Name, ShapeRounded)
	}
	if d.Empty() {
		return ""
	}
	return d.Flowchart("TD")
}

func formatParams(params []string) string {
	if len(params) == 0 {
		return "—"
	}
	quoted := make([]string, len(params))
	for i, p := range params {
		quoted[i] = "`" + p + "`"
	}
	return strings.Join(quoted, ", ")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
