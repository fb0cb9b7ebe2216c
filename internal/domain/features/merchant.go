// merchant.go normalizes counterparty names and tags well known Kenyan
// merchants and billers with a lifestyle category.
package features

import (
	"regexp"
	"strings"
)

// Lifestyle categories assigned by the merchant table.
const (
	CategoryShopping  = "Shopping"
	CategoryFuel      = "Fuel"
	CategoryBetting   = "Betting"
	CategoryUtilities = "Utilities"
)

// MerchantInfo contains normalized merchant information
type MerchantInfo struct {
	OriginalName   string `json:"original_name"`
	NormalizedName string `json:"normalized_name"`
	Category       string `json:"category,omitempty"`
	Subcategory    string `json:"subcategory,omitempty"`
}

// MerchantPattern defines a pattern for matching and normalizing merchants
type MerchantPattern struct {
	Pattern     *regexp.Regexp
	Name        string
	Category    string
	Subcategory string
}

// MerchantSanitizer normalizes counterparty names and detects categories
type MerchantSanitizer struct {
	patterns []MerchantPattern
}

// NewMerchantSanitizer creates a new sanitizer with the default merchant table
func NewMerchantSanitizer() *MerchantSanitizer {
	return &MerchantSanitizer{
		patterns: defaultMerchantPatterns(),
	}
}

// Sanitize normalizes a counterparty name and detects its category.
// The first matching pattern wins.
func (s *MerchantSanitizer) Sanitize(rawName string) MerchantInfo {
	cleaned := cleanCounterparty(rawName)
	result := MerchantInfo{
		OriginalName:   rawName,
		NormalizedName: cleaned,
	}

	for _, pattern := range s.patterns {
		if pattern.Pattern.MatchString(cleaned) {
			result.NormalizedName = pattern.Name
			result.Category = pattern.Category
			result.Subcategory = pattern.Subcategory
			return result
		}
	}

	result.NormalizedName = titleCase(cleaned)
	return result
}

// InCategory reports whether rawName maps to category.
func (s *MerchantSanitizer) InCategory(rawName, category string) bool {
	return s.Sanitize(rawName).Category == category
}

// AddPattern adds a custom merchant pattern
func (s *MerchantSanitizer) AddPattern(pattern string, name, category, subcategory string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, MerchantPattern{
		Pattern:     re,
		Name:        name,
		Category:    category,
		Subcategory: subcategory,
	})
	return nil
}

var (
	accountSuffix = regexp.MustCompile(`(?i)\s+acc(ount)?(\.|\s|$).*$`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// cleanCounterparty removes account references and extra spacing.
func cleanCounterparty(raw string) string {
	result := strings.Trim(strings.TrimSpace(raw), "-")
	result = accountSuffix.ReplaceAllString(result, "")
	result = spaceRun.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// titleCase converts a string to title case
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}

// defaultMerchantPatterns returns supermarkets, fuel stations, bookmakers
// and billers seen on Kenyan M-Pesa statements.
func defaultMerchantPatterns() []MerchantPattern {
	return []MerchantPattern{
		// Supermarkets
		{regexp.MustCompile(`(?i)QUICK\s*MART`), "Quick Mart", CategoryShopping, "Supermarket"},
		{regexp.MustCompile(`(?i)NAIVAS`), "Naivas", CategoryShopping, "Supermarket"},
		{regexp.MustCompile(`(?i)TUSKYS`), "Tuskys", CategoryShopping, "Supermarket"},

		// Fuel
		{regexp.MustCompile(`(?i)RUBIS`), "Rubis", CategoryFuel, "Fuel Station"},
		{regexp.MustCompile(`(?i)\bSHELL\b`), "Shell", CategoryFuel, "Fuel Station"},
		{regexp.MustCompile(`(?i)\bTOTAL(ENERGIES)?\b`), "TotalEnergies", CategoryFuel, "Fuel Station"},
		{regexp.MustCompile(`(?i)ASTROL`), "Astrol", CategoryFuel, "Fuel Station"},

		// Bookmakers
		{regexp.MustCompile(`(?i)SPORT\s*PESA`), "SportPesa", CategoryBetting, "Bookmaker"},
		{regexp.MustCompile(`(?i)BETIKA`), "Betika", CategoryBetting, "Bookmaker"},
		{regexp.MustCompile(`(?i)ODIBETS`), "Odibets", CategoryBetting, "Bookmaker"},

		// Billers
		{regexp.MustCompile(`(?i)KPLC|KENYA\s*POWER`), "KPLC", CategoryUtilities, "Electricity"},
		{regexp.MustCompile(`(?i)ZUKU`), "Zuku", CategoryUtilities, "Internet"},
		{regexp.MustCompile(`(?i)SAFARICOM\s*HOME|HOME\s*FIBRE`), "Safaricom Home", CategoryUtilities, "Internet"},
		{regexp.MustCompile(`(?i)NAIROBI\s*WATER`), "Nairobi Water", CategoryUtilities, "Water"},
	}
}
