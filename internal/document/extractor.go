package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/models"
	"github.com/zombar/guardian/internal/terminology"
)

// Extraction methods
const (
	MethodPDFText   = "pdf_text"
	MethodVision    = "vision"
	MethodPlainText = "plain_text"
)

const maxPDFPages = 50

// DocumentStore loads documents and stores their extracted text
type DocumentStore interface {
	GetMedicalDocument(ctx context.Context, id string) (*models.MedicalDocument, error)
	UpdateExtractedText(ctx context.Context, id, text string) error
}

// Vision transcribes text from an image
type Vision interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Extraction is the outcome of extracting one document
type Extraction struct {
	DocumentID  string              `json:"documentId"`
	Method      string              `json:"method"`
	Characters  int                 `json:"characters"`
	Accuracy    *Result             `json:"accuracy"`
	Terminology *terminology.Result `json:"terminology"`
}

// Extractor turns stored document bytes into extracted_text and scores it
type Extractor struct {
	docs     DocumentStore
	objects  ObjectStore
	vision   Vision
	accuracy *AccuracyAnalyzer
	terms    *terminology.Validator
	logger   *slog.Logger
}

// NewExtractor creates an Extractor. vision may be nil, in which case image
// documents fail with an external_api error.
func NewExtractor(docs DocumentStore, objects ObjectStore, vision Vision, accuracy *AccuracyAnalyzer, terms *terminology.Validator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		docs:     docs,
		objects:  objects,
		vision:   vision,
		accuracy: accuracy,
		terms:    terms,
		logger:   logger,
	}
}

// Extract reads, transcribes, stores and scores a document
func (e *Extractor) Extract(ctx context.Context, documentID string) (*Extraction, error) {
	doc, err := e.docs.GetMedicalDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	data, err := e.objects.Get(ctx, doc.FilePath)
	if err != nil {
		return nil, err
	}

	text, method, err := e.transcribe(ctx, doc, data)
	if err != nil {
		metrics.DocumentsExtracted.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.DocumentsExtracted.WithLabelValues(method).Inc()

	if err := e.docs.UpdateExtractedText(ctx, doc.ID, text); err != nil {
		return nil, err
	}
	doc.ExtractedText = text

	e.logger.Info("document text extracted",
		"document_id", doc.ID,
		"method", method,
		"characters", utf8.RuneCountInString(text))

	return &Extraction{
		DocumentID:  doc.ID,
		Method:      method,
		Characters:  utf8.RuneCountInString(text),
		Accuracy:    e.accuracy.AnalyzeDocumentAccuracy(ctx, doc, ""),
		Terminology: e.terms.ValidateMedicalTerminology(ctx, doc.UserID, doc.ID, text, terminology.LevelStandard),
	}, nil
}

func (e *Extractor) transcribe(ctx context.Context, doc *models.MedicalDocument, data []byte) (string, string, error) {
	switch FileTypeOf(doc.FilePath, doc.DocType) {
	case FileTypePDF:
		text, err := pdfText(data)
		if err != nil {
			return "", "", apperr.New(apperr.Validation, fmt.Errorf("failed to read PDF: %w", err))
		}
		if strings.TrimSpace(text) == "" {
			return "", "", apperr.Newf(apperr.Validation, "PDF has no text layer")
		}
		return text, MethodPDFText, nil

	case FileTypeImage:
		if e.vision == nil {
			return "", "", apperr.Newf(apperr.ExternalAPI, "no vision model configured")
		}
		text, err := e.vision.ExtractText(ctx, data, mimetype.Detect(data).String())
		if err != nil {
			return "", "", err
		}
		return text, MethodVision, nil
	}

	return strings.ToValidUTF8(string(data), ""), MethodPlainText, nil
}

// pdfText concatenates the plain text of each page
func pdfText(data []byte) (text string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := r.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(pageText))
	}

	return b.String(), nil
}
