package logg

// Field names shared by every component logger.
const (
	Layer     = "layer"
	Operation = "operation"
	URL       = "url"
	Selector  = "selector"
	Action    = "action"
	Index     = "index"
	RunID     = "run_id"
	SessionID = "session_id"
	Engine    = "engine"
	Artifact  = "artifact"
	Kind      = "kind"
)
