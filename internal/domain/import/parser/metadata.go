package parser

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

var (
	customerNamePattern = regexp.MustCompile(`Customer Name:\s+(.+)`)
	mobileNumberPattern = regexp.MustCompile(`Mobile Number:\s+(\d+)`)
)

// Metadata is the statement owner's identity as printed on the document.
type Metadata struct {
	CustomerName string `json:"customer_name"`
	MobileNumber string `json:"mobile_number"`
}

// Found reports whether both identity fields were extracted.
func (m Metadata) Found() bool {
	return m.CustomerName != statement.NotFound && m.MobileNumber != statement.NotFound
}

// MetadataExtractor pulls identity fields out of statement text.
type MetadataExtractor struct{}

// NewMetadataExtractor creates a new metadata extractor.
func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{}
}

// Extract searches the rebuilt page text first and falls back to the
// reader's plain text rendering for fields still missing. Missing fields
// are reported as statement.NotFound; this never fails.
func (m *MetadataExtractor) Extract(doc *Document) Metadata {
	var b strings.Builder
	for _, p := range doc.Pages {
		b.WriteString(pageText(p.Glyphs))
		b.WriteByte('\n')
	}

	meta := ParseMetadata(b.String())
	if meta.Found() || doc.PlainText == "" {
		return meta
	}

	fallback := ParseMetadata(doc.PlainText)
	if meta.CustomerName == statement.NotFound {
		meta.CustomerName = fallback.CustomerName
	}
	if meta.MobileNumber == statement.NotFound {
		meta.MobileNumber = fallback.MobileNumber
	}
	return meta
}

// ParseMetadata applies the label patterns to text.
func ParseMetadata(text string) Metadata {
	meta := Metadata{CustomerName: statement.NotFound, MobileNumber: statement.NotFound}
	if m := customerNamePattern.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			meta.CustomerName = name
		}
	}
	if m := mobileNumberPattern.FindStringSubmatch(text); m != nil {
		meta.MobileNumber = m[1]
	}
	return meta
}
