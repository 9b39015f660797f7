package models

// Envelope is a decoded Debezium CDC event. Every key is optional; consumers
// must tolerate absent or differently-typed values.
type Envelope map[string]interface{}

// EnrichedEnvelope wraps the original event together with derived metadata.
// Original is the parsed input echoed untouched, never a mutated copy.
type EnrichedEnvelope struct {
	Original   Envelope   `json:"original"`
	Enrichment Enrichment `json:"enrichment"`
}

// Enrichment holds the independently computed groups. A group whose
// preconditions do not hold is a nil pointer and is omitted from the JSON.
type Enrichment struct {
	Operation          *Operation          `json:"operation,omitempty"`
	Timestamps         *Timestamps         `json:"timestamps,omitempty"`
	SourceMetadata     *SourceMetadata     `json:"source_metadata,omitempty"`
	DataQuality        *DataQuality        `json:"data_quality,omitempty"`
	CustomerInsights   *CustomerInsights   `json:"customer_insights,omitempty"`
	ProcessingMetadata *ProcessingMetadata `json:"processing_metadata,omitempty"`
}

// Operation describes the Debezium operation code in human terms.
type Operation struct {
	Code       string `json:"code"`
	Label      string `json:"label"`
	IsMutation bool   `json:"is_mutation"`
}

// Timestamps carries the source event time and the time this stage saw it.
type Timestamps struct {
	EventTimeMs       interface{} `json:"event_time_ms"`
	EventTimeISO      string      `json:"event_time_iso"`
	ProcessingTimeISO string      `json:"processing_time_iso"`
}

// SourceMetadata is copied verbatim from the event's source block; absent
// fields serialize as null.
type SourceMetadata struct {
	Database   interface{} `json:"database"`
	Schema     interface{} `json:"schema"`
	Table      interface{} `json:"table"`
	Connector  interface{} `json:"connector"`
	Version    interface{} `json:"version"`
	IsSnapshot bool        `json:"is_snapshot"`
}

// DataQuality summarizes how much row state the event carries.
type DataQuality struct {
	HasBefore  bool `json:"has_before"`
	HasAfter   bool `json:"has_after"`
	FieldCount int  `json:"field_count"`
	IsComplete bool `json:"is_complete"`
}

// CustomerInsights is derived from the after-image email column.
type CustomerInsights struct {
	EmailDomain *string `json:"email_domain"`
	HasEmail    bool    `json:"has_email"`
	EmailLength int     `json:"email_length"`
}

// ProcessingMetadata records which stage instance handled the message.
type ProcessingMetadata struct {
	FunctionName    string      `json:"function_name"`
	FunctionVersion string      `json:"function_version"`
	MessageID       *string     `json:"message_id"`
	Topic           *string     `json:"topic"`
	PartitionID     interface{} `json:"partition_id"`
}
