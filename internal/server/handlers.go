package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/receipt-ingest/internal/capture"
	"github.com/zombor/receipt-ingest/internal/extraction"
	"github.com/zombor/receipt-ingest/internal/imaging"
	"github.com/zombor/receipt-ingest/internal/ingest"
)

// maxFormSize caps multipart uploads at 50MB to handle high-resolution phone
// photos.
const maxFormSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ingestError maps the error taxonomy onto user-facing messages. Pre-upload
// and rolled-back failures are safe to retry; a persistence failure after
// extraction is not, and the message must say so.
func ingestError(w http.ResponseWriter, err error) {
	var persistErr *ingest.PersistenceError
	if errors.As(err, &persistErr) {
		slog.Error("Persistence failed after upload", "error", err)
		jsonError(w, http.StatusInternalServerError,
			"Upload succeeded but saving the receipt failed. Do not retry; contact support.")
		return
	}

	var uploadErr *ingest.UploadError
	var extractErr *ingest.ExtractionError
	if errors.As(err, &uploadErr) || errors.As(err, &extractErr) {
		slog.Error("Ingest failed, uploads rolled back", "error", err)
		jsonError(w, http.StatusBadGateway,
			"Nothing was saved. It is safe to try again.")
		return
	}

	var decodeErr *imaging.DecodeError
	var encodeErr *imaging.EncodeError
	var rasterErr *imaging.RasterizationError
	if errors.As(err, &decodeErr) || errors.As(err, &encodeErr) || errors.As(err, &rasterErr) {
		slog.Error("Image processing failed", "error", err)
		jsonError(w, http.StatusUnprocessableEntity,
			"The file could not be processed. Nothing was saved; try a different file.")
		return
	}

	slog.Error("Request failed", "error", err)
	jsonError(w, http.StatusInternalServerError, "Internal server error")
}

// handleIndex serves the HTML interface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// sessionView is the JSON shape of a capture session's current state.
type sessionView struct {
	ID             string              `json:"id"`
	State          capture.State       `json:"state"`
	PendingPreview string              `json:"pending_preview,omitempty"`
	Pages          []capture.StripItem `json:"pages"`
	StripHTML      string              `json:"strip_html,omitempty"`
	Verification   *extraction.Result  `json:"verification,omitempty"`
}

func (s *Server) sessionView(id string, sess *captureSession) sessionView {
	view := sessionView{
		ID:    id,
		State: sess.capture.State(),
	}
	if pending := sess.capture.Pending(); pending != nil {
		view.PendingPreview = pending.PreviewURI
	}
	strip := capture.NewStrip(sess.capture.Document(), 0, view.State == capture.StateReview)
	view.Pages = strip.Items
	if html, err := strip.RenderHTML(); err == nil {
		view.StripHTML = string(html)
	}
	if pending := sess.pendingReceipt(); pending != nil {
		view.Verification = pending.Result
	}
	return view
}

// handleCreateSession starts a new capture session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CollectionID string `json:"collection_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.CollectionID == "" {
		body.CollectionID = "default"
	}
	id, sess := s.newSession(body.CollectionID)
	writeJSON(w, http.StatusCreated, s.sessionView(id, sess))
}

// handleGetSession returns the session's state and thumbnail strip.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(id, sess))
}

// handleAddPhoto accepts one acquired photo and moves the session to preview.
func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}

	data, contentType, ok := s.readUploadedFile(w, r, "file")
	if !ok {
		return
	}

	if _, err := sess.capture.AddPhoto(r.Context(), data, contentType); err != nil {
		if errors.Is(err, capture.ErrCaptureInFlight) || errors.Is(err, capture.ErrNotCapturing) {
			jsonError(w, http.StatusConflict, err.Error())
			return
		}
		ingestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(id, sess))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, func(sess *captureSession) error {
		return sess.capture.Confirm()
	})
}

func (s *Server) handleRetake(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, func(sess *captureSession) error {
		return sess.capture.Retake()
	})
}

func (s *Server) handleAddAnother(w http.ResponseWriter, r *http.Request) {
	s.sessionTransition(w, r, func(sess *captureSession) error {
		return sess.capture.AddAnother()
	})
}

func (s *Server) sessionTransition(w http.ResponseWriter, r *http.Request, fn func(*captureSession) error) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err := fn(sess); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(id, sess))
}

// handleRemovePage removes a confirmed page and renumbers the rest.
func (s *Server) handleRemovePage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "Invalid page number")
		return
	}
	if err := sess.capture.RemovePage(n); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView(id, sess))
}

// handleFinalize hands the document to the orchestrator. A single-page
// document pauses for verification and returns the extraction result; a
// multi-page document persists immediately. From preview with no confirmed
// pages, the single-photo fast path applies.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}

	var doc *capture.Document
	var err error
	if sess.capture.State() == capture.StatePreview {
		doc, err = sess.capture.FinalizeSingle()
	} else {
		doc, err = sess.capture.Finalize()
	}
	if err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}

	if doc.Len() == 1 {
		pending, err := s.orch.IngestSingle(r.Context(), doc, sess.collectionID)
		if err != nil {
			s.dropSession(id)
			ingestError(w, err)
			return
		}
		sess.setPending(pending)
		writeJSON(w, http.StatusOK, map[string]any{
			"verification": pending.Result,
		})
		return
	}

	receipt, err := s.orch.Ingest(r.Context(), doc, sess.collectionID)
	s.dropSession(id)
	if err != nil {
		ingestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleVerify persists a single-page receipt after user verification. The
// body may carry corrected extraction fields.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	pending := sess.pendingReceipt()
	if pending == nil {
		jsonError(w, http.StatusConflict, "No receipt awaiting verification")
		return
	}

	var corrected *extraction.Result
	if r.ContentLength > 0 {
		corrected = &extraction.Result{}
		if err := json.NewDecoder(r.Body).Decode(corrected); err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid verification body")
			return
		}
		if corrected.Total <= 0 {
			jsonError(w, http.StatusBadRequest, "A positive total is required.")
			return
		}
	}

	receipt, err := pending.Confirm(r.Context(), corrected)
	if err != nil {
		ingestError(w, err)
		return
	}
	s.dropSession(id)
	writeJSON(w, http.StatusCreated, receipt)
}

// handleCancelSession tears the session down. If a single-page receipt is
// awaiting verification its uploaded blobs are deleted; otherwise no network
// or storage calls have happened and cancellation is purely in-memory.
func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.session(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Session not found")
		return
	}
	if pending := sess.pendingReceipt(); pending != nil {
		pending.Cancel(r.Context())
	}
	sess.capture.Cancel()
	s.dropSession(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleDirectUpload ingests a multi-select of images or a single PDF without
// a capture session. A one-page result pauses for verification just like the
// session flow; the response carries a session ID for the verify or cancel
// call. Multi-page results persist immediately.
func (s *Server) handleDirectUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	collectionID := r.FormValue("collection_id")
	if collectionID == "" {
		collectionID = "default"
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, http.StatusBadRequest, "No files were selected. Please choose at least one file.")
		return
	}

	var producer capture.Producer
	if len(files) == 1 && fileContentType(files[0].Header.Get("Content-Type"), files[0].Filename) == "application/pdf" {
		f, err := files[0].Open()
		if err != nil {
			jsonError(w, http.StatusBadRequest, "Error reading file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
			return
		}
		producer = capture.NewDocumentProducer(data, s.opts)
	} else {
		inputs := make([]capture.PhotoInput, 0, len(files))
		for _, header := range files {
			f, err := header.Open()
			if err != nil {
				jsonError(w, http.StatusBadRequest, "Error reading file")
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
				return
			}
			inputs = append(inputs, capture.PhotoInput{
				Data:        data,
				ContentType: fileContentType(header.Header.Get("Content-Type"), header.Filename),
			})
		}
		producer = capture.NewPhotoProducer(inputs, s.opts)
	}

	doc, err := producer.Produce(r.Context())
	if err != nil {
		ingestError(w, err)
		return
	}

	if doc.Len() == 1 {
		pending, err := s.orch.IngestSingle(r.Context(), doc, collectionID)
		if err != nil {
			ingestError(w, err)
			return
		}
		id := s.newVerificationSession(collectionID, pending)
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":   id,
			"verification": pending.Result,
		})
		return
	}

	receipt, err := s.orch.Ingest(r.Context(), doc, collectionID)
	if err != nil {
		ingestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleListReceipts returns all flat and parent receipts.
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.svc.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a receipt and, for parents, its page rows.
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, pages, err := s.svc.GetReceipt(r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"receipt": receipt,
		"pages":   pages,
	})
}

// handleDeleteReceipt removes a receipt's records and blobs.
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteReceipt(r.Context(), r.PathValue("id")); err != nil {
		slog.Error("Error deleting receipt", "error", err)
		jsonError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handlePageImage serves a page's stored full image or thumbnail.
func (s *Server) handlePageImage(thumbnail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.PathValue("n"))
		if err != nil {
			jsonError(w, http.StatusBadRequest, "Invalid page number")
			return
		}
		data, contentType, err := s.svc.PageImage(r.Context(), r.PathValue("id"), n, thumbnail)
		if err != nil {
			jsonError(w, http.StatusNotFound, "Page not found")
			return
		}
		setCORSHeaders(w)
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

// readUploadedFile parses a single-file multipart upload. On failure it
// writes the error response and returns ok=false.
func (s *Server) readUploadedFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			msg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, http.StatusBadRequest, msg)
		return nil, "", false
	}

	f, header, err := r.FormFile(field)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "No file was selected. Please choose a file to upload.")
		return nil, "", false
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return nil, "", false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, "", false
	}

	return data, fileContentType(header.Header.Get("Content-Type"), header.Filename), true
}

// fileContentType falls back to the filename extension when the part carries
// no content type.
func fileContentType(contentType, filename string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic", ".heif":
		return "image/heic"
	default:
		return "application/octet-stream"
	}
}
