package enrich

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string)  { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Error(msg string) { l.errors = append(l.errors, msg) }

// decodeOutput parses an enriched envelope back into generic maps so tests
// can assert on absent keys and JSON nulls.
func decodeOutput(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func enrichmentOf(t *testing.T, out map[string]interface{}) map[string]interface{} {
	t.Helper()
	enrichment, ok := out["enrichment"].(map[string]interface{})
	require.True(t, ok, "output should contain an enrichment object")
	return enrichment
}

func TestProcess_EndToEnd(t *testing.T) {
	input := []byte(`{"op":"u","ts_ms":1700000000000,"source":{"db":"sales","table":"orders","snapshot":"false"},"before":{"status":"new"},"after":{"status":"shipped","email":"x@y.com"}}`)
	logger := &recordingLogger{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewEnricher(WithClock(func() time.Time { return now }))

	output := e.Process(input, Context{Logger: logger})

	out := decodeOutput(t, output)
	enrichment := enrichmentOf(t, out)

	// The original is echoed exactly.
	var parsedInput map[string]interface{}
	require.NoError(t, json.Unmarshal(input, &parsedInput))
	assert.Equal(t, parsedInput, out["original"])

	operation := enrichment["operation"].(map[string]interface{})
	assert.Equal(t, "u", operation["code"])
	assert.Equal(t, "UPDATE", operation["label"])
	assert.Equal(t, true, operation["is_mutation"])

	timestamps := enrichment["timestamps"].(map[string]interface{})
	assert.Equal(t, float64(1700000000000), timestamps["event_time_ms"])
	assert.Equal(t, isoNaive(time.UnixMilli(1700000000000)), timestamps["event_time_iso"])
	assert.Equal(t, "2024-01-02T03:04:05", timestamps["processing_time_iso"])

	sourceMeta := enrichment["source_metadata"].(map[string]interface{})
	assert.Equal(t, "sales", sourceMeta["database"])
	assert.Equal(t, "orders", sourceMeta["table"])
	assert.Nil(t, sourceMeta["schema"])
	assert.Equal(t, false, sourceMeta["is_snapshot"])

	quality := enrichment["data_quality"].(map[string]interface{})
	assert.Equal(t, true, quality["has_before"])
	assert.Equal(t, true, quality["has_after"])
	assert.Equal(t, float64(2), quality["field_count"])
	assert.Equal(t, true, quality["is_complete"])

	insights := enrichment["customer_insights"].(map[string]interface{})
	assert.Equal(t, "y.com", insights["email_domain"])
	assert.Equal(t, true, insights["has_email"])
	assert.Equal(t, float64(7), insights["email_length"])

	require.Len(t, logger.infos, 1)
	assert.Equal(t, "Enriched message from orders - op: u", logger.infos[0])
	assert.Empty(t, logger.errors)
}

func TestProcess_OperationTable(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		code       string
		label      string
		isMutation bool
	}{
		{name: "create", input: `{"op":"c"}`, code: "c", label: "CREATE", isMutation: true},
		{name: "update", input: `{"op":"u"}`, code: "u", label: "UPDATE", isMutation: true},
		{name: "delete", input: `{"op":"d"}`, code: "d", label: "DELETE", isMutation: true},
		{name: "read", input: `{"op":"r"}`, code: "r", label: "READ", isMutation: false},
		{name: "unrecognized code", input: `{"op":"x"}`, code: "x", label: "UNKNOWN", isMutation: false},
		{name: "absent op", input: `{}`, code: "unknown", label: "UNKNOWN", isMutation: false},
		{name: "non-string op", input: `{"op":5}`, code: "unknown", label: "UNKNOWN", isMutation: false},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutput(t, e.Process([]byte(tt.input), Context{}))
			operation := enrichmentOf(t, out)["operation"].(map[string]interface{})
			assert.Equal(t, tt.code, operation["code"])
			assert.Equal(t, tt.label, operation["label"])
			assert.Equal(t, tt.isMutation, operation["is_mutation"])
		})
	}
}

func TestProcess_TimestampsOmitted(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "absent ts_ms", input: `{"op":"c"}`},
		{name: "zero ts_ms", input: `{"op":"c","ts_ms":0}`},
		{name: "non-numeric ts_ms", input: `{"op":"c","ts_ms":"soon"}`},
		{name: "null ts_ms", input: `{"op":"c","ts_ms":null}`},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutput(t, e.Process([]byte(tt.input), Context{}))
			enrichment := enrichmentOf(t, out)
			_, present := enrichment["timestamps"]
			assert.False(t, present, "timestamps group should be omitted")
			// The remaining groups still appear.
			assert.Contains(t, enrichment, "operation")
			assert.Contains(t, enrichment, "data_quality")
			assert.Contains(t, enrichment, "processing_metadata")
		})
	}
}

func TestProcess_SnapshotExactStringMatch(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		isSnapshot bool
	}{
		{name: "string true", input: `{"source":{"snapshot":"true"}}`, isSnapshot: true},
		{name: "boolean true", input: `{"source":{"snapshot":true}}`, isSnapshot: false},
		{name: "capitalized True", input: `{"source":{"snapshot":"True"}}`, isSnapshot: false},
		{name: "numeric one", input: `{"source":{"snapshot":1}}`, isSnapshot: false},
		{name: "string false", input: `{"source":{"snapshot":"false"}}`, isSnapshot: false},
		{name: "absent snapshot", input: `{"source":{"db":"sales"}}`, isSnapshot: false},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutput(t, e.Process([]byte(tt.input), Context{}))
			sourceMeta := enrichmentOf(t, out)["source_metadata"].(map[string]interface{})
			assert.Equal(t, tt.isSnapshot, sourceMeta["is_snapshot"])
		})
	}
}

func TestProcess_SourceMetadataOmitted(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "absent source", input: `{"op":"c"}`},
		{name: "empty source", input: `{"op":"c","source":{}}`},
		{name: "non-object source", input: `{"op":"c","source":"db1"}`},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutput(t, e.Process([]byte(tt.input), Context{}))
			enrichment := enrichmentOf(t, out)
			_, present := enrichment["source_metadata"]
			assert.False(t, present, "source_metadata group should be omitted")
			assert.Contains(t, enrichment, "operation")
		})
	}
}

func TestProcess_DataQuality(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		hasBefore  bool
		hasAfter   bool
		fieldCount float64
		isComplete bool
	}{
		{
			name:       "before and after present",
			input:      `{"before":{"a":1},"after":{"a":2,"b":3}}`,
			hasBefore:  true,
			hasAfter:   true,
			fieldCount: 2,
			isComplete: true,
		},
		{
			name:       "delete with only before",
			input:      `{"before":{"a":1}}`,
			hasBefore:  true,
			hasAfter:   false,
			fieldCount: 0,
			isComplete: false,
		},
		{
			name:       "null before and after",
			input:      `{"before":null,"after":null}`,
			hasBefore:  false,
			hasAfter:   false,
			fieldCount: 0,
			isComplete: false,
		},
		{
			name:       "empty after",
			input:      `{"after":{}}`,
			hasBefore:  false,
			hasAfter:   true,
			fieldCount: 0,
			isComplete: false,
		},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decodeOutput(t, e.Process([]byte(tt.input), Context{}))
			quality := enrichmentOf(t, out)["data_quality"].(map[string]interface{})
			assert.Equal(t, tt.hasBefore, quality["has_before"])
			assert.Equal(t, tt.hasAfter, quality["has_after"])
			assert.Equal(t, tt.fieldCount, quality["field_count"])
			assert.Equal(t, tt.isComplete, quality["is_complete"])
		})
	}
}

func TestProcess_CustomerInsights(t *testing.T) {
	e := NewEnricher()

	t.Run("email with domain", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"after":{"email":"a@b.com"}}`), Context{}))
		insights := enrichmentOf(t, out)["customer_insights"].(map[string]interface{})
		assert.Equal(t, "b.com", insights["email_domain"])
		assert.Equal(t, true, insights["has_email"])
		assert.Equal(t, float64(7), insights["email_length"])
	})

	t.Run("email without at sign", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"after":{"email":"nobody"}}`), Context{}))
		insights := enrichmentOf(t, out)["customer_insights"].(map[string]interface{})
		assert.Nil(t, insights["email_domain"])
		assert.Equal(t, true, insights["has_email"])
		assert.Equal(t, float64(6), insights["email_length"])
	})

	t.Run("empty email", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"after":{"email":""}}`), Context{}))
		insights := enrichmentOf(t, out)["customer_insights"].(map[string]interface{})
		assert.Nil(t, insights["email_domain"])
		assert.Equal(t, false, insights["has_email"])
		assert.Equal(t, float64(0), insights["email_length"])
	})

	t.Run("no email key", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"after":{"status":"new"}}`), Context{}))
		_, present := enrichmentOf(t, out)["customer_insights"]
		assert.False(t, present)
	})

	t.Run("no after image", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"op":"d","before":{"email":"a@b.com"}}`), Context{}))
		_, present := enrichmentOf(t, out)["customer_insights"]
		assert.False(t, present)
	})

	t.Run("non-string email skips only this group", func(t *testing.T) {
		out := decodeOutput(t, e.Process([]byte(`{"after":{"email":42}}`), Context{}))
		enrichment := enrichmentOf(t, out)
		_, present := enrichment["customer_insights"]
		assert.False(t, present)
		assert.Contains(t, enrichment, "data_quality")
	})
}

func TestProcess_FailOpenOnMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "truncated JSON", input: []byte(`{"op":"u","ts_ms":`)},
		{name: "invalid UTF-8", input: []byte{0xff, 0xfe, '{', '}'}},
		{name: "JSON null", input: []byte(`null`)},
		{name: "JSON array", input: []byte(`[1,2,3]`)},
		{name: "empty input", input: []byte{}},
	}

	e := NewEnricher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			output := e.Process(tt.input, Context{Logger: logger})
			assert.Equal(t, tt.input, output, "failure path must return the input verbatim")
			assert.Len(t, logger.errors, 1)
			assert.Empty(t, logger.infos)
		})
	}
}

func TestProcess_MissingCapabilities(t *testing.T) {
	e := NewEnricher()
	out := decodeOutput(t, e.Process([]byte(`{"op":"c"}`), Context{}))
	meta := enrichmentOf(t, out)["processing_metadata"].(map[string]interface{})

	assert.Equal(t, "cdc-enrichment", meta["function_name"])
	assert.Equal(t, "1.0", meta["function_version"])
	assert.Nil(t, meta["message_id"])
	assert.Nil(t, meta["topic"])
	assert.Nil(t, meta["partition_id"])
}

func TestProcess_ContextCapabilities(t *testing.T) {
	e := NewEnricher()
	fctx := Context{
		FunctionName:    func() string { return "orders-enricher" },
		FunctionVersion: func() string { return "2.3" },
		MessageID:       func() interface{} { return 42 },
		Topic:           func() string { return "cdc.orders" },
		PartitionID:     func() interface{} { return 7 },
	}

	out := decodeOutput(t, e.Process([]byte(`{"op":"c"}`), fctx))
	meta := enrichmentOf(t, out)["processing_metadata"].(map[string]interface{})

	assert.Equal(t, "orders-enricher", meta["function_name"])
	assert.Equal(t, "2.3", meta["function_version"])
	assert.Equal(t, "42", meta["message_id"], "message id is stringified")
	assert.Equal(t, "cdc.orders", meta["topic"])
	assert.Equal(t, float64(7), meta["partition_id"])
}

func TestProcess_PanickingCapabilityDegradesToFallback(t *testing.T) {
	e := NewEnricher()
	fctx := Context{
		FunctionName: func() string { panic("capability unavailable") },
		Topic:        func() string { return "cdc.orders" },
	}

	out := decodeOutput(t, e.Process([]byte(`{"op":"c"}`), fctx))
	meta := enrichmentOf(t, out)["processing_metadata"].(map[string]interface{})

	assert.Equal(t, "cdc-enrichment", meta["function_name"])
	assert.Equal(t, "cdc.orders", meta["topic"], "other capabilities are unaffected")
}

func TestProcess_OriginalEchoedExactly(t *testing.T) {
	input := []byte(`{"op":"r","ts_ms":1699999999999,"source":{"db":"hr","schema":"public","table":"people","connector":"postgresql","version":"2.4.0","snapshot":"true"},"after":{"id":1,"name":"Ada"},"extra":{"nested":[1,2,{"k":"v"}]}}`)
	e := NewEnricher()

	out := decodeOutput(t, e.Process(input, Context{}))

	var parsedInput map[string]interface{}
	require.NoError(t, json.Unmarshal(input, &parsedInput))
	assert.Equal(t, parsedInput, out["original"])
}

func TestProcess_ProcessingTimeUsesInjectedClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 45, 123456000, time.UTC)
	e := NewEnricher(WithClock(func() time.Time { return now }))

	out := decodeOutput(t, e.Process([]byte(`{"ts_ms":1700000000000}`), Context{}))
	timestamps := enrichmentOf(t, out)["timestamps"].(map[string]interface{})

	assert.Equal(t, "2024-06-01T12:30:45.123456", timestamps["processing_time_iso"])
}

func TestIsoNaive(t *testing.T) {
	assert.Equal(t, "2024-01-02T03:04:05",
		isoNaive(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.Equal(t, "2024-01-02T03:04:05.000123",
		isoNaive(time.Date(2024, 1, 2, 3, 4, 5, 123000, time.UTC)))
}
