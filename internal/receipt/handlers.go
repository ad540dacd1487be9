package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart uploads. High-resolution phone photos
// regularly exceed 10MB.
const maxUploadSize = int64(50 << 20)

const uploadTooLarge = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// corsError writes a plain error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes an {"error": message} response
func jsonError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExported):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// detectContentType falls back to the file extension when the upload
// carries no Content-Type
func detectContentType(header string, filename string) string {
	contentType := header
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	// HEIC/HEIF MIME types are kept so the scanner can convert them
	return strings.ToLower(strings.TrimSpace(contentType))
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleScanReceipt stores an uploaded file and returns the receipts found on it
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusBadRequest, uploadTooLarge)
			return
		}
		jsonError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, http.StatusBadRequest, msg)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, http.StatusBadRequest, uploadTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)

	receipts, err := s.service.ScanReceipt(header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error scanning receipt", "filename", header.Filename, "error", err)
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// decodeReceipt reads a receipt from a JSON request body
func decodeReceipt(r *http.Request) (*Receipt, error) {
	var receipt Receipt
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		return nil, err
	}
	if receipt.Currency == "" {
		receipt.Currency = DefaultCurrency
	}
	return &receipt, nil
}

// handleCreateReceipt saves a reviewed receipt
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := decodeReceipt(r)
	if err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.CreateReceipt(receipt); err != nil {
		slog.Error("Error creating receipt", "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleUpdateReceipt replaces the editable fields of a receipt
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	receipt, err := decodeReceipt(r)
	if err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := s.service.UpdateReceipt(id, receipt)
	if err != nil {
		slog.Error("Error updating receipt", "id", id, "error", err)
		jsonError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	receipt, err := s.service.GetReceipt(id)
	if err != nil {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetReceiptFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteReceipt(id); err != nil {
		slog.Error("Error deleting receipt", "id", id, "error", err)
		code := statusFor(err)
		msg := "Error deleting receipt"
		if code == http.StatusConflict {
			msg = "Receipt belongs to an export and cannot be deleted"
		}
		corsError(w, msg, code)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
