package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID      = "user_id"
	FieldDisplayName = "display_name"

	// Realtime
	FieldConnID    = "conn_id"
	FieldRoom      = "room"
	FieldEvent     = "event"
	FieldRecipient = "recipient_id"
	FieldMessageID = "message_id"
	FieldBackend   = "backend"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

const headerRequestID = "X-Request-ID"
