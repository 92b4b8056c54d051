package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	maxFileSize    = 10 << 20 // per uploaded PDF
	maxUploadFiles = 20
	maxUploadSize  = maxUploadFiles*maxFileSize + 1<<20 // room for multipart framing
	maxFormMemory  = 32 << 20
	maxTextSize    = 1 << 20
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleUploadReceipts imports one or more PDFs sent as "pdf" form files
func (s *Server) handleUploadReceipts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload is too large, maximum is %d files of 10MB", maxUploadFiles))
			return
		}
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	headers := r.MultipartForm.File["pdf"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No PDF file was provided")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	for _, header := range headers {
		if msg := validateUpload(header); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		data, err := readUpload(header)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		uploads = append(uploads, Upload{Filename: header.Filename, Data: data})
	}

	results := s.service.ImportBatch(uploads)
	writeJSON(w, uploadStatus(results), map[string]any{"results": results})
}

func validateUpload(header *multipart.FileHeader) string {
	if strings.ToLower(filepath.Ext(header.Filename)) != ".pdf" {
		return fmt.Sprintf("%s: only PDF files are accepted", header.Filename)
	}
	if header.Size > maxFileSize {
		return fmt.Sprintf("%s: file is too large, maximum size is 10MB", header.Filename)
	}
	return ""
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// uploadStatus is 201 when any receipt was stored, 409 when the files were
// all duplicates and 422 otherwise
func uploadStatus(results []*ImportResult) int {
	var duplicates int
	for _, res := range results {
		switch res.Status {
		case ImportSuccess, ImportPartial:
			return http.StatusCreated
		case ImportDuplicate:
			duplicates++
		}
	}
	if duplicates == len(results) {
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

// handleParse previews the parse of raw receipt text
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTextSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error reading body")
		return
	}
	writeJSON(w, http.StatusOK, s.service.ParseText(string(body)))
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			writeError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		slog.Error("Error getting receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt":        receipt,
		"total_discount": receipt.TotalDiscount(),
	})
}

// handleGetReceiptFile returns the stored PDF of a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, filename, err := s.service.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/pdf")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	}
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			writeError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		slog.Error("Error deleting receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "Error deleting receipt")
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handlePendingBonuses returns the bonuses of a receipt that still need a
// manual decision
func (s *Server) handlePendingBonuses(w http.ResponseWriter, r *http.Request) {
	pending, err := s.service.PendingBonuses(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			writeError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		slog.Error("Error listing pending bonuses", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleResolveBonus applies a manual decision to an unmatched bonus
func (s *Server) handleResolveBonus(w http.ResponseWriter, r *http.Request) {
	var req Resolution
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.ResolveBonus(r.PathValue("id"), r.PathValue("bonusID"), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrReceiptNotFound):
			writeError(w, http.StatusNotFound, "Receipt not found")
		case errors.Is(err, ErrBonusNotFound):
			writeError(w, http.StatusForbidden, "Bonus not found for this receipt")
		case errors.Is(err, ErrLineItemNotFound):
			writeError(w, http.StatusForbidden, "Line item not found for this receipt")
		case errors.Is(err, ErrDiscountExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidResolution):
			writeError(w, http.StatusBadRequest, "Invalid request")
		default:
			slog.Error("Error resolving bonus", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      result.Message,
		"product_name": result.ProductName,
	})
}

// handleListProducts returns all known products
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.service.ListProducts()
	if err != nil {
		slog.Error("Error listing products", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// handleListImports returns the import history
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	logs, err := s.service.ListImportLogs()
	if err != nil {
		slog.Error("Error listing import logs", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleExport downloads all line items as a spreadsheet
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX()
	if err != nil {
		slog.Error("Error exporting line items", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="line-items.xlsx"`)
	w.Write(data)
}
