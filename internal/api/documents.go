package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gwi.com/campus-knowledge/internal/core"
	"gwi.com/campus-knowledge/internal/ingest"
	"gwi.com/campus-knowledge/internal/store"
)

type CreateDocumentRequest struct {
	SourceType store.SourceType `json:"source_type"`
	Title      string           `json:"title"`
	Text       string           `json:"text"`
	URL        string           `json:"url"`
	Visibility store.Visibility `json:"visibility"`
	Publish    bool             `json:"publish"`
}

// ingestRequest turns the body into a normalizer request. Without a
// source_type, a url is classified by its extension and text is authored.
func (req CreateDocumentRequest) ingestRequest() (ingest.Request, error) {
	switch req.SourceType {
	case store.SourceAuthored:
		return ingest.Authored{Title: req.Title, Text: req.Text}, nil
	case store.SourceWebImported:
		if _, err := ingest.ClassifyURL(req.URL); err != nil {
			return nil, err
		}
		return ingest.PageURL{URL: req.URL}, nil
	case store.SourceUploaded:
		if _, err := ingest.ClassifyURL(req.URL); err != nil {
			return nil, err
		}
		return ingest.DocumentURL{URL: req.URL, Title: req.Title}, nil
	case "":
		if req.URL != "" {
			r, err := ingest.ClassifyURL(req.URL)
			if err != nil {
				return nil, err
			}
			if d, ok := r.(ingest.DocumentURL); ok {
				d.Title = req.Title
				return d, nil
			}
			return r, nil
		}
		return ingest.Authored{Title: req.Title, Text: req.Text}, nil
	default:
		return nil, fmt.Errorf("unknown source_type %q: %w", req.SourceType, core.ErrInvalidInput)
	}
}

func (h *APIHandler) CreateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	ingestReq, err := req.ingestRequest()
	if err != nil {
		writeError(w, r, err, "create document")
		return
	}

	doc, err := h.documentService.Ingest(r.Context(), userID(r), ingestReq, core.IngestOptions{
		Visibility: req.Visibility,
		Publish:    req.Publish,
	})
	if err != nil {
		writeError(w, r, err, "create document")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "Upload exceeds size limit")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	publish := false
	if v := r.FormValue("publish"); v != "" {
		publish, err = strconv.ParseBool(v)
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "publish must be a boolean")
			return
		}
	}

	doc, err := h.documentService.Upload(r.Context(), userID(r), core.Upload{
		Filename: header.Filename,
		Title:    r.FormValue("title"),
		Content:  file,
	}, core.IngestOptions{
		Visibility: store.Visibility(r.FormValue("visibility")),
		Publish:    publish,
	})
	if err != nil {
		writeError(w, r, err, "upload document")
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type ImportRequest struct {
	URLs       []string         `json:"urls"`
	Visibility store.Visibility `json:"visibility"`
	Publish    bool             `json:"publish"`
}

type ImportResultResponse struct {
	URL      string          `json:"url"`
	Document *store.Document `json:"document,omitempty"`
	Status   int             `json:"status"`
	Error    string          `json:"error,omitempty"`
}

func (h *APIHandler) ImportDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := h.documentService.ImportPages(r.Context(), userID(r), req.URLs, core.IngestOptions{
		Visibility: req.Visibility,
		Publish:    req.Publish,
	})
	if err != nil {
		writeError(w, r, err, "import documents")
		return
	}

	resp := make([]ImportResultResponse, 0, len(results))
	for _, res := range results {
		item := ImportResultResponse{URL: res.URL, Document: res.Document, Status: http.StatusCreated}
		if res.Err != nil {
			item.Status = statusFor(res.Err)
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) PublishDocumentHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documentService.Publish(r.Context(), userID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, "publish document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *APIHandler) ResyncDocumentHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documentService.Resync(r.Context(), userID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, "re-sync document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documentService.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err, "list documents")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documentService.Get(r.Context(), userID(r), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, r, err, "get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
