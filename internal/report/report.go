// Package report renders analysis results.
package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"text/template"

	"gopkg.in/yaml.v3"

	"iocscan/internal/ioc"
)

// Format specifies the output format for reports.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// DefaultPrecision is the number of decimal digits in text output.
const DefaultPrecision = 5

//go:embed report.schema.json
var schema []byte

// Schema returns the JSON Schema that JSON reports conform to.
func Schema() []byte {
	return schema
}

// ParseFormat parses an output format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format: %s (use text, json, yaml, or markdown)", s)
	}
}

// Document is one analysed file and its result.
type Document struct {
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	Digest     string `json:"digest,omitempty" yaml:"digest,omitempty"`
	ioc.Result `yaml:",inline"`
}

// NewDocument wraps a result with the identity of the file it came from.
func NewDocument(file, digest string, res *ioc.Result) *Document {
	return &Document{File: file, Digest: digest, Result: *res}
}

// Generator renders documents in one format.
type Generator struct {
	format    Format
	verbose   bool
	precision int
}

// NewGenerator creates a new report generator.
func NewGenerator(format Format) *Generator {
	return &Generator{
		format:    format,
		precision: DefaultPrecision,
	}
}

// WithVerbose includes the per-offset breakdown in text and markdown output.
func (g *Generator) WithVerbose(verbose bool) *Generator {
	g.verbose = verbose
	return g
}

// WithPrecision sets the number of decimal digits in text and markdown output.
func (g *Generator) WithPrecision(digits int) *Generator {
	if digits >= 0 {
		g.precision = digits
	}
	return g
}

// Generate writes doc to w.
func (g *Generator) Generate(doc *Document, w io.Writer) error {
	switch g.format {
	case FormatText:
		return g.generateText(doc, w)
	case FormatJSON:
		return g.generateJSON(doc, w)
	case FormatYAML:
		return g.generateYAML(doc, w)
	case FormatMarkdown:
		return g.generateMarkdown(doc, w)
	default:
		return fmt.Errorf("unknown format: %s", g.format)
	}
}

// number formats v as %W.Pf with W = P+2, which is %7.5f at the default
// precision.
func (g *Generator) number(v float64) string {
	return fmt.Sprintf("%*.*f", g.precision+2, g.precision, v)
}

func (g *Generator) generateText(doc *Document, w io.Writer) error {
	if g.verbose {
		if doc.File != "" {
			fmt.Fprintf(w, "File:        %s\n", doc.File)
		}
		fmt.Fprintf(w, "Length:      %d %ss\n", doc.TextLength, doc.Unit)
		fmt.Fprintf(w, "Key length:  %d\n", doc.KeyLength)
		fmt.Fprintf(w, "Denominator: %s\n", doc.Mode)
		if doc.LettersOnly {
			fmt.Fprintln(w, "Letters only")
		}
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Offset\tLength\tPairs\tIoC\t")
		for _, o := range doc.Offsets {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t\n", o.Offset, o.Length, o.Coincidences, g.number(o.IoC))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	_, err := fmt.Fprintf(w, "The average IOC is %s\n", g.number(doc.Average))
	return err
}

func (g *Generator) generateJSON(doc *Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func (g *Generator) generateYAML(doc *Document, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return encoder.Close()
}

const markdownTemplate = `# Index of Coincidence
{{if .File}}
File: ` + "`{{.File}}`" + `
{{end}}
| Property | Value |
|----------|-------|
| Key length | {{.KeyLength}} |
| Text length | {{.TextLength}} {{.Unit}}s |
| Denominator | {{.Mode}} |
| Letters only | {{.LettersOnly}} |
| **Average IoC** | {{num .Average}} |
{{if verbose}}
## Offsets

| Offset | Length | Pairs | IoC |
|-------:|-------:|------:|----:|
{{range .Offsets}}| {{.Offset}} | {{.Length}} | {{.Coincidences}} | {{num .IoC}} |
{{end}}{{end}}`

func (g *Generator) generateMarkdown(doc *Document, w io.Writer) error {
	funcMap := template.FuncMap{
		"num":     func(v float64) string { return strings.TrimSpace(g.number(v)) },
		"verbose": func() bool { return g.verbose },
	}

	t, err := template.New("report").Funcs(funcMap).Parse(markdownTemplate)
	if err != nil {
		return err
	}
	return t.Execute(w, doc)
}
