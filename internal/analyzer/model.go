package analyzer

// RelationKind classifies an edge in the structural model.
type RelationKind string

const (
	RelationContains RelationKind = "contains"
	RelationCalls    RelationKind = "calls"
	RelationListens  RelationKind = "listens"
	RelationImports  RelationKind = "imports"
)

// Relation is one edge between two named entities.
type Relation struct {
	From string
	To   string
	Kind RelationKind
}

// Function describes a function or method.
type Function struct {
	Name       string
	Params     []string
	Decorators []string
	Docstring  string
	Line       int
	// Callback marks functions registered as event/state callbacks.
	Callback bool
	Calls    []string
}

// Class describes a class definition and its methods.
type Class struct {
	Name      string
	Bases     []string
	Docstring string
	Line      int
	Methods   []Function
}

// Model is the structural model extracted from one source file. It is the
// renderer's entire input: the renderer never invents relationships that are
// not present here.
type Model struct {
	Path      string
	Name      string
	Docstring string
	Imports   []string
	Classes   []Class
	Functions []Function
	// Entities holds external entity identifiers referenced in string
	// literals (for example "light.kitchen").
	Entities  []string
	Relations []Relation

	// Degraded is set when the content could not be analyzed; Diagnostics
	// explains why. A degraded model still renders to a minimal artifact.
	Degraded    bool
	Diagnostics []string
}

// EntityCount returns the number of named entities in the model (classes,
// methods and top-level functions).
func (m *Model) EntityCount() int {
	n := len(m.Classes) + len(m.Functions)
	for _, c := range m.Classes {
		n += len(c.Methods)
	}
	return n
}
