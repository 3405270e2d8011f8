package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"iocscan/internal/ioc"
)

const testDigest = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func sampleDocument(t *testing.T) *Document {
	t.Helper()
	res, err := ioc.Analyze([]byte("ABCDABCD"), 4)
	require.NoError(t, err)
	return NewDocument("/tmp/cipher.txt", testDigest, res)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		hasError bool
	}{
		{"text", FormatText, false},
		{"", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"md", FormatMarkdown, false},
		{"html", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.hasError {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatText).Generate(sampleDocument(t), &buf))
	assert.Equal(t, "The average IOC is 1.00000\n", buf.String())
}

func TestTextReportPrecision(t *testing.T) {
	res, err := ioc.Analyze([]byte("AAAAA"), 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatText).WithPrecision(2).Generate(NewDocument("", "", res), &buf))
	assert.Equal(t, "The average IOC is 2.00\n", buf.String())

	buf.Reset()
	require.NoError(t, NewGenerator(FormatText).WithPrecision(-3).Generate(NewDocument("", "", res), &buf))
	assert.Equal(t, "The average IOC is 2.00000\n", buf.String())
}

func TestTextReportVerbose(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatText).WithVerbose(true).Generate(sampleDocument(t), &buf))

	out := buf.String()
	assert.Contains(t, out, "File:        /tmp/cipher.txt")
	assert.Contains(t, out, "Key length:  4")
	assert.Contains(t, out, "Denominator: shared")
	assert.Contains(t, out, "Offset")
	assert.Equal(t, 5, strings.Count(out, "1.00000"), out)
	assert.True(t, strings.HasSuffix(out, "The average IOC is 1.00000\n"))
}

func TestJSONReportMatchesSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatJSON).Generate(sampleDocument(t), &buf))

	var instance any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &instance))

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("report.schema.json", bytes.NewReader(Schema())))
	schema, err := compiler.Compile("report.schema.json")
	require.NoError(t, err)

	assert.NoError(t, schema.Validate(instance))

	doc := instance.(map[string]any)
	assert.Equal(t, "shared", doc["mode"])
	assert.Equal(t, "byte", doc["unit"])
	assert.Equal(t, float64(1), doc["average_ioc"])
	assert.Len(t, doc["offsets"], 4)
}

func TestSchemaRejectsInvalidReport(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("report.schema.json", bytes.NewReader(Schema())))
	schema, err := compiler.Compile("report.schema.json")
	require.NoError(t, err)

	var instance any
	require.NoError(t, json.Unmarshal([]byte(`{"key_length": 0, "mode": "median"}`), &instance))
	assert.Error(t, schema.Validate(instance))
}

func TestYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatYAML).Generate(sampleDocument(t), &buf))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/tmp/cipher.txt", decoded["file"])
	assert.Equal(t, "shared", decoded["mode"])
	assert.Equal(t, 4, decoded["key_length"])
	assert.Len(t, decoded["offsets"], 4)
}

func TestMarkdownReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(FormatMarkdown).Generate(sampleDocument(t), &buf))

	out := buf.String()
	assert.Contains(t, out, "# Index of Coincidence")
	assert.Contains(t, out, "| **Average IoC** | 1.00000 |")
	assert.NotContains(t, out, "## Offsets")

	buf.Reset()
	require.NoError(t, NewGenerator(FormatMarkdown).WithVerbose(true).Generate(sampleDocument(t), &buf))
	assert.Contains(t, buf.String(), "## Offsets")
	assert.Contains(t, buf.String(), "| 3 | 2 | 2 | 1.00000 |")
}

func TestUnknownFormat(t *testing.T) {
	err := NewGenerator(Format("html")).Generate(sampleDocument(t), &bytes.Buffer{})
	assert.Error(t, err)
}
