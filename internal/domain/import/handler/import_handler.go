package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/interceptors"
)

// multipartMemory is how much of an upload is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// ImportHandler serves the document parsing endpoint.
type ImportHandler struct {
	importSvc *importservice.ImportService
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc *importservice.ImportService, maxUploadBytes int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		maxUpload: maxUploadBytes,
		logger:    logger,
	}
}

// Register mounts the handler's routes on mux.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /parse", h.Parse)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /sources", h.Sources)
}

// validationFailure is the 422 body of a strict source with errors.
type validationFailure struct {
	Message     string                  `json:"message"`
	Errors      []string                `json:"erros"`
	Warnings    []string                `json:"avisos"`
	Divergences []validation.Divergence `json:"divergencias"`
}

// Parse handles POST /parse: a multipart form with the source id, the page
// ranges of both sections, optional site context and the PDF itself.
func (h *ImportHandler) Parse(w http.ResponseWriter, r *http.Request) {
	reqID, _ := interceptors.GetRequestIDFromContext(r.Context())
	logger := h.logger.With(slog.String("request_id", reqID))

	if r.ContentLength > h.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUpload))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := readParseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.importSvc.Parse(r.Context(), req)
	if err != nil {
		var verr *importservice.ValidationError
		switch {
		case errors.As(err, &verr):
			logger.Info("strict validation failed",
				slog.String("source", req.SourceID),
				slog.Int("errors", len(verr.Report.Errors)),
			)
			writeJSON(w, http.StatusUnprocessableEntity, validationFailure{
				Message:     "validation failed",
				Errors:      verr.Report.Errors,
				Warnings:    verr.Report.Warnings,
				Divergences: verr.Report.Divergences,
			})
		case errors.Is(err, importservice.ErrUnknownSource):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("source %q is not configured", req.SourceID))
		case errors.Is(err, importservice.ErrEmptyDocument):
			writeError(w, http.StatusBadRequest, "pdf is empty")
		case r.Context().Err() != nil:
			logger.Info("client went away", slog.Any("error", err))
		default:
			logger.Error("failed to parse document", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "parse failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz.
func (h *ImportHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Sources handles GET /sources.
func (h *ImportHandler) Sources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": h.importSvc.Sources()})
}

func readParseRequest(r *http.Request) (importservice.ParseRequest, error) {
	var req importservice.ParseRequest

	req.SourceID = strings.TrimSpace(r.FormValue("base_id"))
	if req.SourceID == "" {
		return req, errors.New("base_id is required")
	}

	var err error
	if req.Budget.Start, err = formInt(r, "orcamento_inicio", true); err != nil {
		return req, err
	}
	if req.Budget.End, err = formInt(r, "orcamento_fim", true); err != nil {
		return req, err
	}
	if req.Compositions.Start, err = formInt(r, "composicoes_inicio", false); err != nil {
		return req, err
	}
	if req.Compositions.End, err = formInt(r, "composicoes_fim", false); err != nil {
		return req, err
	}

	req.Context = normalizer.Context{
		SiteName:     strings.TrimSpace(r.FormValue("obra_nome")),
		SiteLocation: strings.TrimSpace(r.FormValue("obra_localizacao")),
	}

	file, _, err := r.FormFile("pdf")
	if err != nil {
		return req, errors.New("pdf file is required")
	}
	defer file.Close()

	if req.Document, err = io.ReadAll(file); err != nil {
		return req, fmt.Errorf("failed to read pdf: %w", err)
	}
	return req, nil
}

func formInt(r *http.Request, name string, required bool) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
