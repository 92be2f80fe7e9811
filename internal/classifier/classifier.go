// Package classifier maps a free-text issue description to a category,
// priority and responsible authority with an ordered keyword table.
package classifier

import (
	"strings"

	"github.com/civictrack/civictrack-backend/internal/report"
)

// DefaultConfidence is reported for every decision. Matching is binary, so
// there is no signal to scale it by.
const DefaultConfidence = 87

// Rule routes a description to a category when any keyword occurs in it
type Rule struct {
	Keywords  []string
	Category  report.Category
	Priority  report.Priority
	Authority string
}

// Matches reports whether any keyword is a substring of the lowercased text.
// Containment is deliberate: "streetcar" matches "street".
func (r Rule) Matches(lowered string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}

// DefaultRules is the routing table, in precedence order
var DefaultRules = []Rule{
	{
		Keywords:  []string{"pothole", "road", "street"},
		Category:  report.CategoryRoadMaintenance,
		Priority:  report.PriorityHigh,
		Authority: "Department of Transportation",
	},
	{
		Keywords:  []string{"light", "lamp", "dark"},
		Category:  report.CategoryStreetLighting,
		Priority:  report.PriorityMedium,
		Authority: "Public Works Department",
	},
	{
		Keywords:  []string{"garbage", "trash", "waste"},
		Category:  report.CategoryWasteManagement,
		Priority:  report.PriorityMedium,
		Authority: "Sanitation Department",
	},
	{
		Keywords:  []string{"water", "leak", "pipe"},
		Category:  report.CategoryWaterInfrastructure,
		Priority:  report.PriorityHigh,
		Authority: "Water & Sewer Department",
	},
}

// Fallback applies when no rule matches
var Fallback = Rule{
	Category:  report.CategoryGeneralIssue,
	Priority:  report.PriorityMedium,
	Authority: "City Maintenance Department",
}

// Classifier evaluates rules in order; the first match wins
type Classifier struct {
	rules      []Rule
	fallback   Rule
	confidence int
}

// New creates a classifier over the given rules. With no rules it uses DefaultRules.
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{
		rules:      rules,
		fallback:   Fallback,
		confidence: DefaultConfidence,
	}
}

// Classify is deterministic: the same description always yields the same result.
func (c *Classifier) Classify(description string) report.Classification {
	rule := c.Match(description)
	return report.Classification{
		Category:   rule.Category,
		Confidence: c.confidence,
		Priority:   rule.Priority,
		Authority:  rule.Authority,
	}
}

// Match returns the winning rule, or the fallback
func (c *Classifier) Match(description string) Rule {
	lowered := strings.ToLower(description)
	for _, r := range c.rules {
		if r.Matches(lowered) {
			return r
		}
	}
	return c.fallback
}

// AuthorityFor returns the authority a category is routed to, or "" when no
// rule produces that category.
func (c *Classifier) AuthorityFor(category report.Category) string {
	for _, r := range c.rules {
		if r.Category == category {
			return r.Authority
		}
	}
	if category == c.fallback.Category {
		return c.fallback.Authority
	}
	return ""
}
