// Package memory owns the live knowledge graph. All mutation flows through
// a single background loop: ingestion is fire-and-forget, queries are
// synchronous, and a decay tick ages the graph once an hour. No other
// component may touch the graph.
package memory

// DeployOutcome is the ingestion record: the fields of a finished deploy
// that matter to the graph. ConcurrentDeploys is part of the contract so
// future schedulers can feed co-deploy information in; callers today pass
// it empty.
type DeployOutcome struct {
	Service           string
	Namespace         string
	Status            string
	Error             error
	ConcurrentDeploys []string
}

// FailurePattern is one known way the service breaks.
type FailurePattern struct {
	Error        string   `json:"error"`
	Confidence   float64  `json:"confidence"`
	Observations int      `json:"observations"`
	Evidence     []string `json:"evidence"`
}

// Dependency is a known depends_on edge from the service.
type Dependency struct {
	Target       string  `json:"target"`
	Weight       float64 `json:"weight"`
	Observations int     `json:"observations"`
}

// Context is what the orchestrator consults before selecting a strategy.
type Context struct {
	Service         string           `json:"service"`
	Namespace       string           `json:"namespace"`
	Known           bool             `json:"known"`
	FailurePatterns []FailurePattern `json:"failure_patterns"`
	Dependencies    []Dependency     `json:"dependencies"`
	Recommendations []string         `json:"recommendations"`
}

// Stats is the introspection surface behind the memory CLI command.
type Stats struct {
	Nodes         int              `json:"nodes"`
	Relationships int              `json:"relationships"`
	TopFailures   []FailurePattern `json:"top_failures,omitempty"`
}
