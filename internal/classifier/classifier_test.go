package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civictrack/civictrack-backend/internal/report"
)

func TestClassify(t *testing.T) {
	c := New()

	tests := []struct {
		name        string
		description string
		category    report.Category
		priority    report.Priority
		authority   string
	}{
		{"pothole", "Large pothole on Main Street", report.CategoryRoadMaintenance, report.PriorityHigh, "Department of Transportation"},
		{"road group wins over light", "pothole near a broken light", report.CategoryRoadMaintenance, report.PriorityHigh, "Department of Transportation"},
		{"light", "Lamp post flickering all night", report.CategoryStreetLighting, report.PriorityMedium, "Public Works Department"},
		{"dark", "The park is completely DARK", report.CategoryStreetLighting, report.PriorityMedium, "Public Works Department"},
		{"garbage", "Garbage overflow at downtown plaza", report.CategoryWasteManagement, report.PriorityMedium, "Sanitation Department"},
		{"water", "Burst pipe flooding the sidewalk", report.CategoryWaterInfrastructure, report.PriorityHigh, "Water & Sewer Department"},
		{"substring match", "tram stuck at the streetcar stop", report.CategoryRoadMaintenance, report.PriorityHigh, "Department of Transportation"},
		{"light beats water", "water pooling under a dead lamp", report.CategoryStreetLighting, report.PriorityMedium, "Public Works Department"},
		{"default", "my neighbor's fence is falling over", report.CategoryGeneralIssue, report.PriorityMedium, "City Maintenance Department"},
		{"empty", "", report.CategoryGeneralIssue, report.PriorityMedium, "City Maintenance Department"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.description)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.priority, got.Priority)
			assert.Equal(t, tt.authority, got.Authority)
			assert.Equal(t, DefaultConfidence, got.Confidence)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New()
	first := c.Classify("Water leak causing street flooding")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, c.Classify("Water leak causing street flooding"))
	}
}

func TestClassify_ConfidenceInRange(t *testing.T) {
	got := New().Classify("anything")
	assert.GreaterOrEqual(t, got.Confidence, 0)
	assert.LessOrEqual(t, got.Confidence, 100)
}

func TestNew_CustomRules(t *testing.T) {
	c := New(Rule{
		Keywords:  []string{"graffiti"},
		Category:  report.CategoryGeneralIssue,
		Priority:  report.PriorityLow,
		Authority: "Parks Department",
	})

	got := c.Classify("Graffiti on the bridge")
	assert.Equal(t, report.PriorityLow, got.Priority)
	assert.Equal(t, "Parks Department", got.Authority)

	// custom tables replace the defaults entirely
	assert.Equal(t, "City Maintenance Department", c.Classify("pothole").Authority)
}

func TestAuthorityFor(t *testing.T) {
	c := New()
	assert.Equal(t, "Sanitation Department", c.AuthorityFor(report.CategoryWasteManagement))
	assert.Equal(t, "City Maintenance Department", c.AuthorityFor(report.CategoryGeneralIssue))
	assert.Equal(t, "", c.AuthorityFor("Snow Removal"))
}
