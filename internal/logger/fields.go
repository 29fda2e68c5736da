package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldBuyerID identifies the buyer a search or purchase belongs to
	FieldBuyerID = "buyer_id"

	// FieldOperation names the pipeline operation being executed
	FieldOperation = "operation"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldJobID is the catalog ingestion job ID
	FieldJobID = "job_id"
)

// Metric fields, attached per entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldSize       = "size"

	// FieldCollection is the vector store collection touched by an operation
	FieldCollection = "collection"

	// FieldCritical marks failures that leave stored state inconsistent
	FieldCritical = "correctness_critical"
)
