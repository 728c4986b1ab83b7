// Package analyzer extracts a structural model from Python automation
// sources. Analysis is a pure function over file content: no shared state,
// deterministic output, safe to run concurrently across files.
//
// Extraction is best-effort and line-oriented. Partially written or
// syntactically broken files never fail analysis; at worst the result is a
// degraded model with a diagnostic note, so a single malformed file cannot
// block the pipeline.
package analyzer

import (
	"bytes"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	classRe    = regexp.MustCompile(`^class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	defRe      = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(`)
	decoRe     = regexp.MustCompile(`^\s*@([\w.]+)`)
	importRe   = regexp.MustCompile(`^import\s+([\w.]+)`)
	fromRe     = regexp.MustCompile(`^from\s+([\w.]+)\s+import`)
	registerRe = regexp.MustCompile(`self\.(?:listen_state|listen_event|listen_mqtt|run_daily|run_hourly|run_minutely|run_every|run_in|run_at)\(\s*self\.(\w+)`)
	callRe     = regexp.MustCompile(`self\.(\w+)\(`)
	entityRe   = regexp.MustCompile(`["']([a-z][a-z_]*\.[a-z0-9_]+)["']`)
)

// Analyze builds the structural model for one source file. It never fails:
// content that cannot be analyzed yields a degraded model.
func Analyze(path string, content []byte) *Model {
	m := &Model{
		Path: path,
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}

	if !utf8.Valid(content) || bytes.ContainsRune(content, 0) {
		m.Degraded = true
		m.Diagnostics = append(m.Diagnostics, "content is not valid UTF-8 text; structural analysis skipped")
		return m
	}

	lines := strings.Split(string(content), "\n")
	m.Docstring = moduleDocstring(lines)

	var (
		decorators   []string
		currentClass *Class
		currentFunc  *Function
		listens      []Relation
		callbacks    = map[string]bool{}
		entitySet    = map[string]bool{}
	)

	flushClass := func() {
		if currentClass != nil {
			m.Classes = append(m.Classes, *currentClass)
			currentClass = nil
		}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		for _, match := range entityRe.FindAllStringSubmatch(line, -1) {
			entitySet[match[1]] = true
		}

		if match := decoRe.FindStringSubmatch(line); match != nil {
			decorators = append(decorators, match[1])
			continue
		}

		if match := importRe.FindStringSubmatch(line); match != nil {
			m.Imports = append(m.Imports, match[1])
			decorators = nil
			continue
		}
		if match := fromRe.FindStringSubmatch(line); match != nil {
			m.Imports = append(m.Imports, match[1])
			decorators = nil
			continue
		}

		if match := classRe.FindStringSubmatch(line); match != nil {
			flushClass()
			currentFunc = nil
			currentClass = &Class{
				Name:      match[1],
				Bases:     splitArgs(match[2]),
				Docstring: docstringAt(lines, i+1),
				Line:      i + 1,
			}
			decorators = nil
			continue
		}

		if match := defRe.FindStringSubmatch(line); match != nil {
			indent := len(match[1])
			fn := Function{
				Name:       match[2],
				Params:     parseParams(lines, i),
				Decorators: decorators,
				Docstring:  docstringAt(lines, i+1),
				Line:       i + 1,
			}
			decorators = nil
			if indent > 0 && currentClass != nil {
				currentClass.Methods = append(currentClass.Methods, fn)
				currentFunc = &currentClass.Methods[len(currentClass.Methods)-1]
			} else {
				flushClass()
				m.Functions = append(m.Functions, fn)
				currentFunc = &m.Functions[len(m.Functions)-1]
			}
			continue
		}

		// Top-level statement ends any open class scope.
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			flushClass()
			currentFunc = nil
		}

		if currentFunc == nil {
			decorators = nil
			continue
		}

		for _, match := range registerRe.FindAllStringSubmatch(line, -1) {
			callbacks[match[1]] = true
			listens = append(listens, Relation{From: currentFunc.Name, To: match[1], Kind: RelationListens})
		}
		for _, match := range callRe.FindAllStringSubmatch(line, -1) {
			currentFunc.Calls = append(currentFunc.Calls, match[1])
		}
	}
	flushClass()

	markCallbacks(m, callbacks)
	m.Entities = sortedKeys(entitySet)
	m.Imports = dedupeSorted(m.Imports)
	m.Relations = buildRelations(m, listens)

	if m.EntityCount() == 0 && len(m.Imports) == 0 {
		m.Diagnostics = append(m.Diagnostics, "no classes, functions or imports found")
	}
	return m
}

// markCallbacks flags registered callback targets plus the AppDaemon
// initialize entrypoint.
func markCallbacks(m *Model, registered map[string]bool) {
	mark := func(fn *Function) {
		if registered[fn.Name] || fn.Name == "initialize" {
			fn.Callback = true
		}
	}
	for ci := range m.Classes {
		for mi := range m.Classes[ci].Methods {
			mark(&m.Classes[ci].Methods[mi])
		}
	}
	for fi := range m.Functions {
		mark(&m.Functions[fi])
	}
}

// buildRelations derives the deterministic edge list: containment, imports,
// listener registrations, and calls restricted to names defined in the file.
func buildRelations(m *Model, listens []Relation) []Relation {
	defined := map[string]bool{}
	for _, c := range m.Classes {
		for _, fn := range c.Methods {
			defined[fn.Name] = true
		}
	}
	for _, fn := range m.Functions {
		defined[fn.Name] = true
	}

	seen := map[Relation]bool{}
	var rels []Relation
	add := func(r Relation) {
		if !seen[r] {
			seen[r] = true
			rels = append(rels, r)
		}
	}

	for _, imp := range m.Imports {
		add(Relation{From: m.Name, To: imp, Kind: RelationImports})
	}
	for _, c := range m.Classes {
		for _, fn := range c.Methods {
			add(Relation{From: c.Name, To: fn.Name, Kind: RelationContains})
			for _, call := range fn.Calls {
				if defined[call] && call != fn.Name {
					add(Relation{From: fn.Name, To: call, Kind: RelationCalls})
				}
			}
		}
	}
	for _, fn := range m.Functions {
		for _, call := range fn.Calls {
			if defined[call] && call != fn.Name {
				add(Relation{From: fn.Name, To: call, Kind: RelationCalls})
			}
		}
	}
	for _, l := range listens {
		if defined[l.To] {
			add(l)
		}
	}

	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Kind != rels[j].Kind {
			return rels[i].Kind < rels[j].Kind
		}
		if rels[i].From != rels[j].From {
			return rels[i].From < rels[j].From
		}
		return rels[i].To < rels[j].To
	})
	return rels
}

// moduleDocstring extracts the top-of-file triple-quoted string, if present.
func moduleDocstring(lines []string) string {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return docstringAt(lines, i)
	}
	return ""
}

// docstringAt reads a triple-quoted string starting at or just after index
// start, skipping blank lines.
func docstringAt(lines []string, start int) string {
	i := start
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) {
		return ""
	}
	trimmed := strings.TrimSpace(lines[i])

	var quote string
	switch {
	case strings.HasPrefix(trimmed, `"""`):
		quote = `"""`
	case strings.HasPrefix(trimmed, `'''`):
		quote = `'''`
	default:
		return ""
	}

	body := strings.TrimPrefix(trimmed, quote)
	if idx := strings.Index(body, quote); idx >= 0 {
		return strings.TrimSpace(body[:idx])
	}

	parts := []string{body}
	for i++; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if idx := strings.Index(line, quote); idx >= 0 {
			parts = append(parts, line[:idx])
			break
		}
		parts = append(parts, line)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// parseParams joins the def header across lines until the parameter list
// closes, then splits it. Best effort: a header that never closes yields
// whatever was collected.
func parseParams(lines []string, defLine int) []string {
	var sb strings.Builder
	depth := 0
	started := false
	for i := defLine; i < len(lines) && i < defLine+10; i++ {
		for _, r := range lines[i] {
			switch r {
			case '(':
				depth++
				if !started {
					started = true
					continue
				}
			case ')':
				depth--
				if started && depth == 0 {
					return splitArgs(sb.String())
				}
			}
			if started && depth >= 1 {
				sb.WriteRune(r)
			}
		}
		if started {
			sb.WriteRune(' ')
		}
	}
	return splitArgs(sb.String())
}

// splitArgs splits a parameter or base-class list, trimming defaults and
// annotations down to bare names.
func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	depth := 0
	var cur strings.Builder
	flush := func() {
		name := strings.TrimSpace(cur.String())
		cur.Reset()
		if name == "" {
			return
		}
		if idx := strings.IndexAny(name, ":="); idx >= 0 {
			name = strings.TrimSpace(name[:idx])
		}
		if name != "" {
			out = append(out, name)
		}
	}
	for _, r := range raw {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				flush()
				continue
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(in []string) []string {
	set := map[string]bool{}
	for _, s := range in {
		set[s] = true
	}
	return sortedKeys(set)
}
