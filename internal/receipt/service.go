package receipt

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-export/internal/export"
	"github.com/zombor/receipt-export/internal/metrics"
	"github.com/zombor/receipt-export/internal/scanning"
)

// IDGenerator generates unique IDs for receipts and exports
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a format name to a Format
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", name)
}

// ContentType returns the MIME type of files in this format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Render writes the export file for records in this format
func (f Format) Render(records []export.Record, report export.Report) ([]byte, error) {
	if f == FormatXLSX {
		return export.GenerateXLSX(records, report)
	}
	return []byte(export.Generate(records, report)), nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	defaults    Defaults
	metrics     *metrics.Metrics
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// WithDefaults sets the export defaults used beneath every request's defaults
func (s *Service) WithDefaults(d Defaults) *Service {
	s.defaults = d
	return s
}

// WithMetrics sets the metrics recorded by the service
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// 50 chars for the base, plus extension
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ScanReceipt stores an uploaded file and extracts every receipt on it.
// The receipts are returned for review and are not saved.
func (s *Service) ScanReceipt(filename string, data []byte, contentType string) ([]*Receipt, error) {
	firstID := s.idGenerator.Generate()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", firstID, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	scanned, err := s.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	s.metrics.IncrementScanned(len(scanned))

	receipts := make([]*Receipt, 0, len(scanned))
	for i, scan := range scanned {
		id := firstID
		if i > 0 {
			id = s.idGenerator.Generate()
		}
		receipts = append(receipts, &Receipt{
			Record:        recordFromScan(id, scan),
			OriginalName:  filename,
			PaymentMethod: scan.PaymentMethod,
			Filename:      savedPath,
			ContentType:   contentType,
		})
	}

	slog.Info("Scanned receipt file", "filename", filename, "receipts", len(receipts))
	return receipts, nil
}

// recordFromScan builds an export record from scanned data
func recordFromScan(id string, data scanning.ReceiptData) export.Record {
	return export.Record{
		ID:                id,
		Vendor:            data.Vendor,
		Date:              data.Date,
		Category:          data.Category,
		Amount:            data.Amount,
		TaxAmount:         data.TaxAmount,
		Currency:          data.Currency,
		InvoiceNumber:     data.InvoiceNumber,
		ContactEmail:      data.ContactEmail,
		DueDate:           data.DueDate,
		InventoryItemCode: data.InventoryItemCode,
		Description:       data.Description,
		Quantity:          data.Quantity,
		UnitAmount:        data.UnitAmount,
		AccountCode:       data.AccountCode,
		TaxType:           data.TaxType,
		POAddressLine1:    data.POAddressLine1,
		POAddressLine2:    data.POAddressLine2,
		POCity:            data.POCity,
		PORegion:          data.PORegion,
		POPostalCode:      data.POPostalCode,
		POCountry:         data.POCountry,
	}
}

// CreateReceipt saves a new receipt, assigning an ID when it has none
func (s *Service) CreateReceipt(receipt *Receipt) error {
	if receipt.ID == "" {
		receipt.ID = s.idGenerator.Generate()
	}
	if receipt.Currency == "" {
		receipt.Currency = DefaultCurrency
	}
	now := s.timeSource.Now()
	receipt.ExportID = ""
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	if err := s.db.SaveReceipt(receipt); err != nil {
		return fmt.Errorf("saving receipt to database: %w", err)
	}
	return nil
}

// UpdateReceipt replaces the editable fields of a stored receipt. The ID,
// file, export link and creation time are kept.
func (s *Service) UpdateReceipt(id string, update *Receipt) (*Receipt, error) {
	existing, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	updated := *update
	updated.ID = existing.ID
	updated.Filename = existing.Filename
	updated.ContentType = existing.ContentType
	updated.OriginalName = existing.OriginalName
	updated.ExportID = existing.ExportID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.timeSource.Now()
	if updated.Currency == "" {
		updated.Currency = DefaultCurrency
	}

	if err := s.db.SaveReceipt(&updated); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return &updated, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest receipt date first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		if receipts[i].Date != receipts[j].Date {
			return receipts[i].Date > receipts[j].Date
		}
		return receipts[i].ID < receipts[j].ID
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt. Its file is removed once no other
// receipt scanned from it remains.
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}
	if receipt.ExportID != "" {
		return fmt.Errorf("receipt %s belongs to export %s: %w", id, receipt.ExportID, ErrExported)
	}

	if receipt.Filename != "" {
		shared, err := s.fileShared(receipt)
		if err != nil {
			return err
		}
		if !shared {
			if err := s.storage.Delete(receipt.Filename); err != nil {
				slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
			}
		}
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// fileShared reports whether another receipt references receipt's file
func (s *Service) fileShared(receipt *Receipt) (bool, error) {
	all, err := s.db.ListReceipts()
	if err != nil {
		return false, fmt.Errorf("listing receipts: %w", err)
	}
	for _, other := range all {
		if other.ID != receipt.ID && other.Filename == receipt.Filename {
			return true, nil
		}
	}
	return false, nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.Filename == "" {
		return nil, "", fmt.Errorf("receipt %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// CheckExport applies defaults to records and validates the result
func (s *Service) CheckExport(records []export.Record, defaults Defaults) ([]export.Record, export.Report) {
	prepared := s.defaults.Merge(defaults).ApplyAll(records)
	return prepared, export.Validate(prepared)
}

// RenderExport validates records and writes them in format. Unless partial
// is set, a batch that is not ready returns a *NotReadyError.
func (s *Service) RenderExport(records []export.Record, defaults Defaults, format Format, partial bool) ([]byte, export.Report, error) {
	prepared, report := s.CheckExport(records, defaults)

	if !report.ExportReady && !partial {
		s.metrics.ObserveExport(metrics.OutcomeNotReady, len(records), 0)
		return nil, report, &NotReadyError{Report: report}
	}

	data, err := format.Render(prepared, report)
	if err != nil {
		return nil, report, fmt.Errorf("rendering %s: %w", format, err)
	}

	outcome := metrics.OutcomeReady
	if !report.ExportReady {
		outcome = metrics.OutcomePartial
		slog.Info("Exporting partial batch", "incomplete", report.Incomplete(), "total", len(records))
	}
	s.metrics.ObserveExport(outcome, len(records), len(export.Select(prepared, report)))

	return data, report, nil
}

// ExportFilename names a download created now
func (s *Service) ExportFilename(format Format) string {
	return fmt.Sprintf("receipts-export-%s.%s", s.timeSource.Now().Format(time.DateOnly), format)
}

// CreateExport records a batch of stored receipts as exported. The batch
// must be ready and none of its receipts may already be exported.
func (s *Service) CreateExport(receiptIDs []string, defaults Defaults) (*Export, error) {
	if len(receiptIDs) == 0 {
		return nil, fmt.Errorf("at least one receipt is required: %w", ErrInvalidBatch)
	}

	receipts := make([]*Receipt, 0, len(receiptIDs))
	seen := make(map[string]bool, len(receiptIDs))
	for _, receiptID := range receiptIDs {
		if seen[receiptID] {
			return nil, fmt.Errorf("receipt %s is listed twice: %w", receiptID, ErrInvalidBatch)
		}
		seen[receiptID] = true

		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		if receipt.ExportID != "" {
			return nil, fmt.Errorf("receipt %s: %w", receiptID, ErrExported)
		}
		receipts = append(receipts, receipt)
	}

	merged := s.defaults.Merge(defaults)
	_, report := s.CheckExport(records(receipts), defaults)
	if !report.ExportReady {
		return nil, &NotReadyError{Report: report}
	}

	now := s.timeSource.Now()
	batch := &Export{
		ID:         s.idGenerator.Generate(),
		ReceiptIDs: receiptIDs,
		Totals:     totals(receipts),
		Defaults:   merged,
		CreatedAt:  now,
	}

	if err := s.db.CommitExport(batch); err != nil {
		return nil, fmt.Errorf("saving export: %w", err)
	}
	for _, receipt := range receipts {
		receipt.ExportID = batch.ID
		receipt.UpdatedAt = now
	}

	slog.Info("Created export", "id", batch.ID, "receipts", len(receipts))
	return batch, nil
}

// totals sums receipt amounts per currency
func totals(receipts []*Receipt) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, r := range receipts {
		currency := r.Currency
		if currency == "" {
			currency = DefaultCurrency
		}
		sums[currency] = sums[currency].Add(r.Amount)
	}
	return sums
}

// GetExport retrieves an export batch by ID
func (s *Service) GetExport(id string) (*Export, error) {
	batch, err := s.db.GetExport(id)
	if err != nil {
		return nil, fmt.Errorf("getting export: %w", err)
	}
	return batch, nil
}

// GetExportWithReceipts retrieves an export batch with its receipts
func (s *Service) GetExportWithReceipts(id string) (*Export, []*Receipt, error) {
	batch, err := s.db.GetExport(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting export: %w", err)
	}

	receipts := make([]*Receipt, 0, len(batch.ReceiptIDs))
	for _, receiptID := range batch.ReceiptIDs {
		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		receipts = append(receipts, receipt)
	}

	return batch, receipts, nil
}

// ListExports returns all export batches, newest first
func (s *Service) ListExports() ([]*Export, error) {
	exports, err := s.db.ListExports()
	if err != nil {
		return nil, fmt.Errorf("listing exports: %w", err)
	}
	sort.SliceStable(exports, func(i, j int) bool {
		return exports[i].CreatedAt.After(exports[j].CreatedAt)
	})
	return exports, nil
}

// ExportFile regenerates the file of a stored export batch from the current
// receipt data and the batch's defaults.
func (s *Service) ExportFile(id string, format Format) ([]byte, error) {
	batch, receipts, err := s.GetExportWithReceipts(id)
	if err != nil {
		return nil, err
	}

	prepared := batch.Defaults.ApplyAll(records(receipts))
	report := export.Validate(prepared)
	if !report.ExportReady {
		// Receipts edited after export may no longer be complete.
		slog.Warn("Stored export is no longer complete", "id", id, "incomplete", report.Incomplete())
	}

	data, err := format.Render(prepared, report)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", format, err)
	}
	return data, nil
}

// ExportCSV regenerates the CSV of a stored export batch
func (s *Service) ExportCSV(id string) ([]byte, error) {
	return s.ExportFile(id, FormatCSV)
}

// ExportXLSX regenerates the XLSX of a stored export batch
func (s *Service) ExportXLSX(id string) ([]byte, error) {
	return s.ExportFile(id, FormatXLSX)
}

// IsNotReady reports whether err carries an export readiness report
func IsNotReady(err error) (*NotReadyError, bool) {
	var notReady *NotReadyError
	ok := errors.As(err, &notReady)
	return notReady, ok
}
