package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zombor/receipt-export/internal/export"
)

// maxExportBody bounds the JSON body of export requests
const maxExportBody = int64(10 << 20)

// exportRequest is the body of the stateless export endpoints
type exportRequest struct {
	Receipts []export.Record `json:"receipts"`
	Defaults Defaults        `json:"defaults"`
}

// validationResponse reports batch readiness to the client
type validationResponse struct {
	export.Report
	Incomplete int `json:"incomplete"`
	Total      int `json:"total"`
}

// notReadyResponse is returned with 422 when a batch is not ready
type notReadyResponse struct {
	Error       string            `json:"error"`
	MissingData []export.IssueSet `json:"missingData"`
	Incomplete  int               `json:"incomplete"`
}

// decodeExportRequest reads and checks the body of a stateless export request
func decodeExportRequest(w http.ResponseWriter, r *http.Request) (*exportRequest, bool) {
	var req exportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportBody)).Decode(&req); err != nil {
		slog.Warn("Invalid export request", "error", err)
		jsonError(w, http.StatusBadRequest, "Invalid receipt data")
		return nil, false
	}
	if len(req.Receipts) == 0 {
		jsonError(w, http.StatusBadRequest, "No receipts provided")
		return nil, false
	}
	if err := req.Defaults.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	for i := range req.Receipts {
		if req.Receipts[i].Currency == "" {
			req.Receipts[i].Currency = DefaultCurrency
		}
	}
	return &req, true
}

// writeNotReady writes the 422 response for a batch with missing data
func writeNotReady(w http.ResponseWriter, report export.Report) {
	writeJSON(w, http.StatusUnprocessableEntity, notReadyResponse{
		Error:       "Export data validation failed",
		MissingData: report.Issues,
		Incomplete:  report.Incomplete(),
	})
}

// writeExportFile sends an export file as a download
func writeExportFile(w http.ResponseWriter, format Format, filename string, data []byte) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing export", "error", err)
	}
}

// handleValidateExport reports which receipts still miss required data
func (s *Server) handleValidateExport(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeExportRequest(w, r)
	if !ok {
		return
	}

	_, report := s.service.CheckExport(req.Receipts, req.Defaults)
	writeJSON(w, http.StatusOK, validationResponse{
		Report:     report,
		Incomplete: report.Incomplete(),
		Total:      len(req.Receipts),
	})
}

// handleRenderExport returns the export file for the posted receipts.
// Batches with missing data are rejected unless ?partial=true.
func (s *Server) handleRenderExport(format Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeExportRequest(w, r)
		if !ok {
			return
		}
		partial, _ := strconv.ParseBool(r.URL.Query().Get("partial"))

		data, report, err := s.service.RenderExport(req.Receipts, req.Defaults, format, partial)
		if _, notReady := IsNotReady(err); notReady {
			writeNotReady(w, report)
			return
		}
		if err != nil {
			slog.Error("Error rendering export", "format", format, "error", err)
			jsonError(w, http.StatusInternalServerError, "Failed to generate export")
			return
		}

		writeExportFile(w, format, s.service.ExportFilename(format), data)
	}
}

// handleListExports returns a list of all export batches
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	exports, err := s.service.ListExports()
	if err != nil {
		slog.Error("Error listing exports", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if exports == nil {
		exports = []*Export{}
	}
	writeJSON(w, http.StatusOK, exports)
}

// handleCreateExport records a batch of stored receipts as exported
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiptIDs []string `json:"receipt_ids"`
		Defaults   Defaults `json:"defaults"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Defaults.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := s.service.CreateExport(req.ReceiptIDs, req.Defaults)
	if notReady, ok := IsNotReady(err); ok {
		writeNotReady(w, notReady.Report)
		return
	}
	if err != nil {
		slog.Error("Error creating export", "error", err)
		jsonError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, batch)
}

// handleGetExport returns an export batch with its receipts
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	batch, receipts, err := s.service.GetExportWithReceipts(id)
	if err != nil {
		corsError(w, "Export not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"export":   batch,
		"receipts": receipts,
	})
}

// handleExportFile downloads the CSV or XLSX of a stored export batch
func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format, err := ParseFormat(r.PathValue("format"))
	if err != nil {
		corsError(w, "Unknown export format", http.StatusNotFound)
		return
	}

	data, err := s.service.ExportFile(id, format)
	if err != nil {
		slog.Error("Error exporting file", "id", id, "format", format, "error", err)
		corsError(w, "Export not found", statusFor(err))
		return
	}

	writeExportFile(w, format, fmt.Sprintf("receipts-export-%s.%s", id, format), data)
}
