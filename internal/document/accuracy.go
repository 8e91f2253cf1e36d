// Package document scores OCR extraction quality and extracts text from
// uploaded medical documents.
package document

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/zombar/guardian/internal/analyzer"
	"github.com/zombar/guardian/internal/audit"
	"github.com/zombar/guardian/internal/config"
	"github.com/zombar/guardian/internal/models"
)

// Strategy names the scoring path that produced a result
type Strategy string

const (
	StrategyExact     Strategy = "exactComparison"
	StrategyHeuristic Strategy = "heuristicEstimate"
)

const (
	FileTypeImage = "image"
	FileTypePDF   = "pdf"
	FileTypeText  = "text"
)

var (
	unusualCharRegex  = regexp.MustCompile(`[^\p{L}\p{N}\s.,;:!?'"()\-/%&+#@$*\[\]]`)
	spaceRunRegex     = regexp.MustCompile(`[ ]{3,}`)
	fragmentedRegex   = regexp.MustCompile(`(?:\b\w\b[ \t]+){4,}\b\w\b`)
	numericOnlyRegex  = regexp.MustCompile(`^[\d\s.,\-/:]+$`)
	letterRegex       = regexp.MustCompile(`\p{L}`)
	digitRegex        = regexp.MustCompile(`\d`)
	sectionLabelRegex = regexp.MustCompile(`(?m)^\s*[A-Z][A-Za-z ]{2,30}:`)
)

// Metrics is the per-document measurement set
type Metrics struct {
	Strategy          Strategy `json:"strategy"`
	FileType          string   `json:"fileType"`
	WordAccuracy      *float64 `json:"wordAccuracy,omitempty"`
	CharacterAccuracy *float64 `json:"characterAccuracy,omitempty"`
	LengthRatio       *float64 `json:"lengthRatio,omitempty"`
	TextExtraction    float64  `json:"textExtraction"`
	OCRQuality        float64  `json:"ocrQuality"`
	Completeness      float64  `json:"completeness"`
	WordCount         int      `json:"wordCount"`
	CharacterCount    int      `json:"characterCount"`
}

// Result is returned by AnalyzeDocumentAccuracy
type Result struct {
	DocumentID      string   `json:"documentId"`
	Metrics         Metrics  `json:"metrics"`
	AccuracyScore   float64  `json:"accuracyScore"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	ProcessingTime  int64    `json:"processingTime"`
}

// AccuracyAnalyzer scores extracted document text
type AccuracyAnalyzer struct {
	recorder *audit.Recorder
	weights  config.DocumentWeights
	now      func() time.Time
}

// NewAccuracyAnalyzer creates an AccuracyAnalyzer
func NewAccuracyAnalyzer(recorder *audit.Recorder, weights config.DocumentWeights, logger *slog.Logger) *AccuracyAnalyzer {
	if recorder == nil {
		recorder = audit.NewRecorder(nil, logger)
	}
	return &AccuracyAnalyzer{recorder: recorder, weights: weights, now: time.Now}
}

// AnalyzeDocumentAccuracy compares against groundTruth when it is non-blank
// and falls back to heuristics otherwise
func (a *AccuracyAnalyzer) AnalyzeDocumentAccuracy(ctx context.Context, doc *models.MedicalDocument, groundTruth string) *Result {
	started := a.now()
	fileType := FileTypeOf(doc.FilePath, doc.DocType)

	var (
		m      Metrics
		issues []string
		recs   []string
	)
	if strings.TrimSpace(groundTruth) != "" {
		m, issues, recs = a.ExactComparison(doc.ExtractedText, groundTruth, fileType)
	} else {
		m, issues, recs = a.HeuristicEstimate(doc.ExtractedText, fileType)
	}

	w := a.weights
	confidence := m.TextExtraction*w.Accuracy + m.OCRQuality*w.OCRQuality + m.Completeness*w.Completeness
	result := &Result{
		DocumentID:      doc.ID,
		Metrics:         m,
		AccuracyScore:   m.TextExtraction,
		ConfidenceScore: round(analyzer.Clamp(confidence)),
		Issues:          issues,
		Recommendations: recs,
	}

	row := a.recorder.Record(ctx, audit.Entry{
		UserID:          doc.UserID,
		DocumentID:      doc.ID,
		ValidationType:  models.ValidationDocumentAccuracy,
		AccuracyScore:   result.AccuracyScore,
		ConfidenceScore: result.ConfidenceScore,
		Started:         started,
		Metrics:         m,
		Issues:          issues,
		Recommendations: recs,
	})
	result.ProcessingTime = row.ProcessingTime

	return result
}

// ExactComparison scores extracted text against an authoritative reference
func (a *AccuracyAnalyzer) ExactComparison(extracted, groundTruth, fileType string) (Metrics, []string, []string) {
	issues, recs := []string{}, []string{}

	truthWords := analyzer.ExtractWords(groundTruth)
	present := make(map[string]bool)
	for _, w := range analyzer.ExtractWords(extracted) {
		present[w] = true
	}
	matched := 0
	for _, w := range truthWords {
		if present[w] {
			matched++
		}
	}
	wordAcc := 100.0
	if len(truthWords) > 0 {
		wordAcc = float64(matched) / float64(len(truthWords)) * 100
	}

	truthRunes := stripSpace(groundTruth)
	extractedRunes := stripSpace(extracted)
	n := len(truthRunes)
	if len(extractedRunes) < n {
		n = len(extractedRunes)
	}
	same := 0
	for i := 0; i < n; i++ {
		if truthRunes[i] == extractedRunes[i] {
			same++
		}
	}
	charAcc := 100.0
	ratio := 1.0
	if len(truthRunes) > 0 {
		charAcc = float64(same) / float64(len(truthRunes)) * 100
		ratio = float64(len(extractedRunes)) / float64(len(truthRunes))
	}

	wordAcc, charAcc = round(analyzer.Clamp(wordAcc)), round(analyzer.Clamp(charAcc))
	completeness := completenessFromRatio(ratio)
	ratio = round(ratio)

	if wordAcc < 90 {
		issues = append(issues, "Word accuracy below 90%")
		recs = append(recs, "Re-scan the document at a higher resolution")
	}
	if charAcc < 90 {
		issues = append(issues, "Character accuracy below 90%")
	}
	if completeness < 80 {
		issues = append(issues, "Extracted text length differs significantly from the reference")
		recs = append(recs, "Check that every page of the document was captured")
	}

	return Metrics{
		Strategy:          StrategyExact,
		FileType:          fileType,
		WordAccuracy:      &wordAcc,
		CharacterAccuracy: &charAcc,
		LengthRatio:       &ratio,
		TextExtraction:    round((wordAcc + charAcc) / 2),
		OCRQuality:        charAcc,
		Completeness:      completeness,
		WordCount:         len(analyzer.ExtractWords(extracted)),
		CharacterCount:    len([]rune(extracted)),
	}, issues, recs
}

// HeuristicEstimate scores extracted text with no reference available
func (a *AccuracyAnalyzer) HeuristicEstimate(extracted, fileType string) (Metrics, []string, []string) {
	issues, recs := []string{}, []string{}
	text := strings.TrimSpace(extracted)
	chars := len([]rune(text))
	words := analyzer.WordCount(text)

	quality := a.weights.HeuristicBase
	if chars < 50 {
		quality -= 20
		issues = append(issues, "Extracted text is very short")
	}
	if words < 10 {
		quality -= 15
		issues = append(issues, "Fewer than 10 words extracted")
	}
	if unusualCharRegex.MatchString(text) {
		quality -= 10
		issues = append(issues, "Unusual characters suggest OCR noise")
	}
	if spaceRunRegex.MatchString(text) {
		quality -= 5
		issues = append(issues, "Repeated spacing detected")
	}
	if fragmentedRegex.MatchString(text) {
		quality -= 10
		issues = append(issues, "Fragmented text detected")
	}
	if chars > 20 && numericOnlyRegex.MatchString(text) {
		quality -= 25
		issues = append(issues, "Extracted text is entirely numeric")
	}
	if letterRegex.MatchString(text) && digitRegex.MatchString(text) {
		quality += 5
	}
	switch fileType {
	case FileTypeImage:
		quality -= 5
	case FileTypePDF:
		quality += 5
	}
	quality = math.Max(a.weights.HeuristicFloor, math.Min(100, quality))

	completeness := 70.0
	if words >= 50 {
		completeness += 10
	}
	if words >= 200 {
		completeness += 10
	}
	if sectionLabelRegex.MatchString(extracted) {
		completeness += 10
	}
	if chars < 50 {
		completeness -= 30
	}
	if chars > 0 && !strings.ContainsAny(text[len(text)-1:], ".!?)") {
		completeness -= 5
	}
	completeness = analyzer.Clamp(completeness)

	if quality < 70 {
		recs = append(recs, "Upload a clearer scan or a PDF with a text layer")
	}
	if completeness < 60 {
		recs = append(recs, "Verify that the whole document was captured")
	}

	quality = round(quality)
	return Metrics{
		Strategy:       StrategyHeuristic,
		FileType:       fileType,
		TextExtraction: quality,
		OCRQuality:     quality,
		Completeness:   round(completeness),
		WordCount:      words,
		CharacterCount: chars,
	}, issues, recs
}

// completenessFromRatio maps extracted/reference length to a score
func completenessFromRatio(r float64) float64 {
	switch {
	case r >= 0.9 && r <= 1.1:
		return 100
	case r >= 0.8 && r <= 1.2:
		return 90
	case r >= 0.7 && r <= 1.3:
		return 80
	case r >= 0.6 && r <= 1.4:
		return 70
	}
	return round(math.Max(30, 100-math.Abs(r-1)*50))
}

// FileTypeOf classifies a document by extension, falling back to docType
func FileTypeOf(path, docType string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tiff", ".tif", ".heic", ".bmp":
		return FileTypeImage
	case ".pdf":
		return FileTypePDF
	case "":
		switch strings.ToLower(docType) {
		case FileTypeImage, FileTypePDF:
			return strings.ToLower(docType)
		}
	}
	return FileTypeText
}

func stripSpace(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}

func round(v float64) float64 { return analyzer.Round(v, 2) }
