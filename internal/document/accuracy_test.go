package document

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

type fakeWriter struct {
	saved []*models.ValidationResult
}

func (f *fakeWriter) SaveValidationResult(_ context.Context, r *models.ValidationResult) error {
	f.saved = append(f.saved, r)
	return nil
}

func newTestAccuracyAnalyzer() (*AccuracyAnalyzer, *fakeWriter) {
	w := &fakeWriter{}
	return NewAccuracyAnalyzer(audit.NewRecorder(w, nil), config.DefaultWeights().Document, nil), w
}

const cleanNote = "Patient reports improved sleep over 14 days. Sertraline dose unchanged. Follow up in 4 weeks."

func TestExactComparisonIdenticalText(t *testing.T) {
	a, w := newTestAccuracyAnalyzer()
	doc := &models.MedicalDocument{ID: "doc-1", UserID: "user-1", FilePath: "u/scan.pdf", ExtractedText: cleanNote}

	result := a.AnalyzeDocumentAccuracy(context.Background(), doc, cleanNote)

	require.NotNil(t, result.Metrics.WordAccuracy)
	require.NotNil(t, result.Metrics.CharacterAccuracy)
	assert.Equal(t, StrategyExact, result.Metrics.Strategy)
	assert.Equal(t, 100.0, *result.Metrics.WordAccuracy)
	assert.Equal(t, 100.0, *result.Metrics.CharacterAccuracy)
	assert.Equal(t, 100.0, result.Metrics.Completeness)
	assert.Equal(t, 100.0, result.AccuracyScore)
	assert.Equal(t, 100.0, result.ConfidenceScore)
	assert.Empty(t, result.Issues)

	require.Len(t, w.saved, 1)
	assert.Equal(t, models.ValidationDocumentAccuracy, w.saved[0].ValidationType)
	assert.Equal(t, "doc-1", w.saved[0].DocumentID)

	var stored Metrics
	require.NoError(t, json.Unmarshal(w.saved[0].Metrics, &stored))
	assert.Equal(t, StrategyExact, stored.Strategy)
}

func TestExactComparisonTruncatedText(t *testing.T) {
	a, _ := newTestAccuracyAnalyzer()
	m, issues, _ := a.ExactComparison("the quick", "the quick brown fox", FileTypeText)

	assert.Equal(t, 50.0, *m.WordAccuracy)
	assert.Equal(t, 50.0, *m.CharacterAccuracy)
	assert.Equal(t, 0.5, *m.LengthRatio)
	assert.Equal(t, 75.0, m.Completeness)
	assert.Equal(t, 50.0, m.TextExtraction)
	assert.Contains(t, issues, "Word accuracy below 90%")
	assert.Contains(t, issues, "Extracted text length differs significantly from the reference")
}

func TestBlankGroundTruthUsesHeuristic(t *testing.T) {
	a, _ := newTestAccuracyAnalyzer()
	doc := &models.MedicalDocument{ID: "doc-1", FilePath: "note.txt", ExtractedText: cleanNote}

	result := a.AnalyzeDocumentAccuracy(context.Background(), doc, "   ")

	assert.Equal(t, StrategyHeuristic, result.Metrics.Strategy)
	assert.Nil(t, result.Metrics.WordAccuracy)
	assert.Equal(t, 90.0, result.AccuracyScore)
	assert.Equal(t, 70.0, result.Metrics.Completeness)
	assert.Equal(t, 84.0, result.ConfidenceScore)
}

func TestHeuristicEstimate(t *testing.T) {
	a, _ := newTestAccuracyAnalyzer()

	tests := []struct {
		name         string
		text         string
		fileType     string
		quality      float64
		completeness float64
	}{
		{"clean text", cleanNote, FileTypeText, 90, 70},
		{"clean pdf", cleanNote, FileTypePDF, 95, 70},
		{"clean image", cleanNote, FileTypeImage, 85, 70},
		{"very short", "abc", FileTypeText, 50, 35},
		{"numeric only floored", "1234567890 1234567890 1234567890", FileTypeText, 30, 35},
		{"empty", "", FileTypeText, 50, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := a.HeuristicEstimate(tt.text, tt.fileType)
			assert.Equal(t, tt.quality, m.TextExtraction)
			assert.Equal(t, tt.quality, m.OCRQuality)
			assert.Equal(t, tt.completeness, m.Completeness)
		})
	}
}

func TestHeuristicPenalties(t *testing.T) {
	a, _ := newTestAccuracyAnalyzer()

	_, issues, _ := a.HeuristicEstimate(cleanNote+" a b c d e", FileTypeText)
	assert.Contains(t, issues, "Fragmented text detected")

	_, issues, _ = a.HeuristicEstimate(cleanNote+"   extra", FileTypeText)
	assert.Contains(t, issues, "Repeated spacing detected")

	_, issues, _ = a.HeuristicEstimate(cleanNote+" ¤¤ ▒", FileTypeText)
	assert.Contains(t, issues, "Unusual characters suggest OCR noise")
}

func TestHeuristicScoresStayInRange(t *testing.T) {
	a, _ := newTestAccuracyAnalyzer()
	for _, text := range []string{"", "x", "▒▒▒   ▒▒▒ a b c d e f", "99999999999999999999999999"} {
		for _, ft := range []string{FileTypeImage, FileTypePDF, FileTypeText} {
			m, _, _ := a.HeuristicEstimate(text, ft)
			assert.GreaterOrEqual(t, m.TextExtraction, 30.0)
			assert.LessOrEqual(t, m.TextExtraction, 100.0)
			assert.GreaterOrEqual(t, m.Completeness, 0.0)
			assert.LessOrEqual(t, m.Completeness, 100.0)
		}
	}
}

func TestCompletenessFromRatio(t *testing.T) {
	tests := []struct {
		ratio    float64
		expected float64
	}{
		{1.0, 100},
		{0.9, 100},
		{1.15, 90},
		{0.75, 80},
		{1.35, 70},
		{0.5, 75},
		{2.0, 50},
		{0.0, 50},
		{3.0, 30},
	}

	for _, tt := range tests {
		if got := completenessFromRatio(tt.ratio); got != tt.expected {
			t.Errorf("completenessFromRatio(%v) = %v, want %v", tt.ratio, got, tt.expected)
		}
	}
}

func TestFileTypeOf(t *testing.T) {
	tests := []struct {
		path, docType, expected string
	}{
		{"user/scan.PNG", "", FileTypeImage},
		{"user/photo.heic", "", FileTypeImage},
		{"user/report.pdf", "", FileTypePDF},
		{"user/notes.txt", "", FileTypeText},
		{"user/upload", "pdf", FileTypePDF},
		{"user/upload", "lab_result", FileTypeText},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FileTypeOf(tt.path, tt.docType), tt.path)
	}
}
