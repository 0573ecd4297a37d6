package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"moviments/internal/batch"
	"moviments/internal/core"
	applog "moviments/internal/log"
	"moviments/internal/services"
)

// multipartOverhead allows for boundaries and part headers on top of the
// file itself.
const multipartOverhead = 64 << 10

func (s *Server) handleProcessCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
			return
		}
		writeFailure(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	if header.Size > s.maxUpload {
		writeFailure(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
		return
	}

	filename := cleanFilename(header.Filename)
	if filename == "" {
		writeFailure(w, http.StatusBadRequest, "missing file name")
		return
	}
	contents, err := io.ReadAll(file)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	result, err := s.svc.Process(r.Context(), filename, contents)
	if err != nil {
		s.fail(w, r, applog.OpProcess, err, http.StatusBadGateway)
		return
	}
	st := result.Stats
	s.events.LogBatchProcessed(r.Context(), filename, st.Total, st.Emitted, st.AlreadyLoaded, st.Unrecognized)
	writeSuccess(w, fmt.Sprintf("Successfully processed %d entries", len(result.Entries)), result)
}

func (s *Server) handleSaveTransaction(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if !s.decode(w, r, &tx) {
		return
	}
	ref, err := s.svc.Save(r.Context(), tx)
	if err != nil {
		s.fail(w, r, applog.OpSave, err, http.StatusBadGateway)
		return
	}

	label := kindLabel(tx.Type)
	if strings.HasPrefix(ref, services.QueuedPrefix) {
		writeSuccess(w, label+" queued for sync", refData{ID: ref})
		return
	}
	s.events.LogRecordCreated(r.Context(), string(tx.Type), tx.Name, tx.Amount, ref)
	writeSuccess(w, label+" created successfully", refData{ID: ref})
}

func (s *Server) handleMarkLoaded(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := r.ParseMultipartForm(maxJSONBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeFailure(w, http.StatusBadRequest, "invalid form body")
		return
	}

	filename := cleanFilename(r.FormValue("filename"))
	if filename == "" {
		writeFailure(w, http.StatusBadRequest, "filename is required")
		return
	}
	rowID, err := strconv.Atoi(strings.TrimSpace(r.FormValue("row_id")))
	if err != nil || rowID < 0 {
		writeFailure(w, http.StatusBadRequest, "row_id must be a non-negative integer")
		return
	}
	check := batch.RowCheck{
		Date:    r.FormValue("date"),
		Concept: r.FormValue("concept"),
		Amount:  r.FormValue("amount"),
	}

	if err := s.svc.MarkLoaded(r.Context(), filename, rowID, check); err != nil {
		s.fail(w, r, applog.OpMark, err, http.StatusInternalServerError)
		return
	}
	writeSuccess(w, "Transaction marked as loaded in CSV", nil)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename := cleanFilename(mux.Vars(r)["filename"])
	if filename == "" {
		writeFailure(w, http.StatusBadRequest, "filename is required")
		return
	}
	contents, err := s.svc.Upload(r.Context(), filename)
	if err != nil {
		s.fail(w, r, applog.OpUpload, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(contents)
}

// cleanFilename keeps the base name of a client supplied path.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

func kindLabel(k core.Kind) string {
	switch k {
	case core.KindExpense:
		return "Expense"
	case core.KindIncome:
		return "Income"
	case core.KindTransfer:
		return "Transfer"
	}
	return "Transaction"
}
