// Package enrich derives metadata from Debezium CDC events. The transform is
// fail-open: a message that cannot be enriched is passed through unchanged
// rather than dropped or failed.
package enrich

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cdc-enrichment/internal/models"
)

const (
	defaultFunctionName    = "cdc-enrichment"
	defaultFunctionVersion = "1.0"
)

// opLabels maps Debezium operation codes to human-readable labels.
var opLabels = map[string]string{
	"c": "CREATE",
	"u": "UPDATE",
	"d": "DELETE",
	"r": "READ",
}

// Enricher computes the enrichment groups for a single event per call. It
// holds no per-message state and is safe for concurrent use.
type Enricher struct {
	clock func() time.Time
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithClock overrides the wall clock used for processing_time_iso.
func WithClock(clock func() time.Time) Option {
	return func(e *Enricher) { e.clock = clock }
}

// NewEnricher creates an Enricher using the real wall clock unless overridden.
func NewEnricher(opts ...Option) *Enricher {
	e := &Enricher{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process enriches one JSON-encoded CDC event. On success it returns the
// indented JSON of {original, enrichment}. On any decode, compute, or encode
// failure, it logs one error line through the context logger and returns the
// input bytes verbatim; hosts holding text must pass its UTF-8 bytes, and the
// failure path never re-encodes them. Process never returns an error and
// never panics, so downstream consumers may receive either an enriched
// envelope or the raw original message.
func (e *Enricher) Process(input []byte, fctx Context) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			fctx.logError(fmt.Sprintf("Error processing message: %v", r))
			out = input
		}
	}()

	message, err := decode(input)
	if err != nil {
		fctx.logError(fmt.Sprintf("Error processing message: %v", err))
		return input
	}

	operation := operationInfo(message)
	enriched := models.EnrichedEnvelope{
		Original: message,
		Enrichment: models.Enrichment{
			Operation:          operation,
			Timestamps:         timestampInfo(message, e.clock()),
			SourceMetadata:     sourceMetadata(message),
			DataQuality:        dataQuality(message),
			CustomerInsights:   customerInsights(message),
			ProcessingMetadata: processingMetadata(fctx),
		},
	}

	output, err := json.MarshalIndent(enriched, "", "  ")
	if err != nil {
		fctx.logError(fmt.Sprintf("Error processing message: %v", err))
		return input
	}

	fctx.logInfo(fmt.Sprintf("Enriched message from %s - op: %s", sourceTable(message), operation.Code))
	return output
}

// decode parses the input as a JSON object. A JSON literal like null or a
// non-object value is rejected so the caller takes the pass-through path.
func decode(input []byte) (models.Envelope, error) {
	if !utf8.Valid(input) {
		return nil, fmt.Errorf("input is not valid UTF-8")
	}
	var message models.Envelope
	if err := json.Unmarshal(input, &message); err != nil {
		return nil, fmt.Errorf("failed to parse message JSON: %w", err)
	}
	if message == nil {
		return nil, fmt.Errorf("message is not a JSON object")
	}
	return message, nil
}

// operationInfo is always emitted; absent or non-string codes map to UNKNOWN.
func operationInfo(message models.Envelope) *models.Operation {
	code := "unknown"
	if s, ok := message["op"].(string); ok {
		code = s
	}
	label, ok := opLabels[code]
	if !ok {
		label = "UNKNOWN"
	}
	return &models.Operation{
		Code:       code,
		Label:      label,
		IsMutation: code == "c" || code == "u" || code == "d",
	}
}

// timestampInfo is emitted only when ts_ms is a non-zero JSON number.
func timestampInfo(message models.Envelope, now time.Time) *models.Timestamps {
	raw, ok := message["ts_ms"]
	if !ok {
		return nil
	}
	ms, ok := raw.(float64)
	if !ok || ms == 0 {
		return nil
	}
	return &models.Timestamps{
		EventTimeMs:       raw,
		EventTimeISO:      isoNaive(time.UnixMilli(int64(ms))),
		ProcessingTimeISO: isoNaive(now.UTC()),
	}
}

// sourceMetadata is emitted only when source is a non-empty object. Field
// values are copied verbatim; absent ones serialize as null.
func sourceMetadata(message models.Envelope) *models.SourceMetadata {
	source, ok := message["source"].(map[string]interface{})
	if !ok || len(source) == 0 {
		return nil
	}
	snapshot, _ := source["snapshot"].(string)
	return &models.SourceMetadata{
		Database:  source["db"],
		Schema:    source["schema"],
		Table:     source["table"],
		Connector: source["connector"],
		Version:   source["version"],
		// Debezium emits snapshot as the string "true"; anything else,
		// including boolean true, does not count as a snapshot.
		IsSnapshot: snapshot == "true",
	}
}

// dataQuality is always emitted. field_count counts keys of the after image;
// a non-object after contributes zero keys.
func dataQuality(message models.Envelope) *models.DataQuality {
	before := message["before"]
	after := message["after"]
	afterMap, _ := after.(map[string]interface{})
	return &models.DataQuality{
		HasBefore:  before != nil,
		HasAfter:   after != nil,
		FieldCount: len(afterMap),
		IsComplete: after != nil && len(afterMap) > 0,
	}
}

// customerInsights is emitted only when the after image carries an email key
// holding a string. A malformed email value skips just this group.
func customerInsights(message models.Envelope) *models.CustomerInsights {
	after, ok := message["after"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := after["email"]
	if !ok {
		return nil
	}
	email, ok := raw.(string)
	if !ok {
		return nil
	}
	insights := &models.CustomerInsights{
		HasEmail:    email != "",
		EmailLength: utf8.RuneCountInString(email),
	}
	if parts := strings.Split(email, "@"); len(parts) > 1 {
		domain := parts[1]
		insights.EmailDomain = &domain
	}
	return insights
}

// processingMetadata is always emitted; each capability is consulted
// independently so one missing accessor cannot suppress the others.
func processingMetadata(fctx Context) *models.ProcessingMetadata {
	meta := &models.ProcessingMetadata{
		FunctionName:    defaultFunctionName,
		FunctionVersion: defaultFunctionVersion,
	}
	if name, ok := stringCapability(fctx.FunctionName); ok {
		meta.FunctionName = name
	}
	if version, ok := stringCapability(fctx.FunctionVersion); ok {
		meta.FunctionVersion = version
	}
	if id, ok := valueCapability(fctx.MessageID); ok && id != nil {
		s := fmt.Sprintf("%v", id)
		meta.MessageID = &s
	}
	if topic, ok := stringCapability(fctx.Topic); ok {
		meta.Topic = &topic
	}
	if partition, ok := valueCapability(fctx.PartitionID); ok {
		meta.PartitionID = partition
	}
	return meta
}

// isoNaive renders t ISO-8601 without a timezone offset, printing fractional
// seconds only when present, matching the upstream convention for these
// fields.
func isoNaive(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

func sourceTable(message models.Envelope) string {
	if source, ok := message["source"].(map[string]interface{}); ok {
		if table, ok := source["table"].(string); ok {
			return table
		}
	}
	return "unknown"
}
