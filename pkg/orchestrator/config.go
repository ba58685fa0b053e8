package orchestrator

// Config bundles the tunables spec.md §6 lists for the Orchestrator.
type Config struct {
	// MaxCredits bounds total credit spend for one DISTRIBUTED run
	// (default 1,000).
	MaxCredits float64
	// MaxQueueSize is the pending-list depth at which a DISTRIBUTED run
	// backs off before enqueuing more work (default 100).
	MaxQueueSize int
}

// DefaultConfig mirrors the teacher's DefaultOrchestratorConfig pattern.
func DefaultConfig() Config {
	return Config{
		MaxCredits:   1000,
		MaxQueueSize: 100,
	}
}
