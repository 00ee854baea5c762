package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/vbonduro/segnalazioni/internal/domain"
	"github.com/vbonduro/segnalazioni/internal/rules"
	"github.com/vbonduro/segnalazioni/internal/service"
	"github.com/vbonduro/segnalazioni/internal/upload"
)

const (
	// formSlack covers the text fields and multipart framing around the photo.
	formSlack = 1 << 20
	// multipartMemory is how much of the form is buffered before file parts
	// spill to temporary files.
	multipartMemory = 8 << 20
	maxJSONBody     = 1 << 20
)

// createdAtLayout matches JavaScript's Date.toISOString.
const createdAtLayout = "2006-01-02T15:04:05.000Z"

type reportResponse struct {
	ID                string   `json:"id"`
	Category          string   `json:"category"`
	Description       string   `json:"description"`
	Address           string   `json:"address"`
	Lat               *float64 `json:"lat"`
	Lng               *float64 `json:"lng"`
	PhotoPath         string   `json:"photo_path"`
	ReporterFirstName string   `json:"reporter_first_name"`
	ReporterLastName  string   `json:"reporter_last_name"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
	PhotoURL          string   `json:"photoUrl"`
}

type createResponse struct {
	reportResponse
	Message     string `json:"message"`
	WhatsAppURL string `json:"whatsappUrl"`
}

type dispatchResponse struct {
	Message     string `json:"message"`
	WhatsAppURL string `json:"whatsappUrl"`
}

func toReportResponse(r *domain.Report, baseURL string) reportResponse {
	return reportResponse{
		ID:                r.ID,
		Category:          string(r.Category),
		Description:       r.Description,
		Address:           r.Address,
		Lat:               r.Lat,
		Lng:               r.Lng,
		PhotoPath:         r.PhotoPath,
		ReporterFirstName: r.ReporterFirstName,
		ReporterLastName:  r.ReporterLastName,
		Status:            string(r.Status),
		CreatedAt:         r.CreatedAt.UTC().Format(createdAtLayout),
		PhotoURL:          service.PhotoURL(baseURL, r.PhotoPath),
	}
}

// baseURL is the configured public URL, or one derived from the request.
func (s *Server) baseURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rules.Publish(s.maxUploadBytes, upload.AllowedTypes))
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+formSlack)

	// URL-encoded bodies are parsed before ErrNotMultipart is returned, so a
	// plain form without a photo still works.
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				s.logger.Error("failed to remove multipart temp files", "error", err)
			}
		}()
	}

	draft := rules.Draft{
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Guided: rules.GuidedFields{
			Issue:     r.FormValue("issue"),
			Timeframe: r.FormValue("timeframe"),
			Impact:    r.FormValue("impact"),
			Details:   r.FormValue("details"),
		},
		Address:           r.FormValue("address"),
		Lat:               r.FormValue("lat"),
		Lng:               r.FormValue("lng"),
		ReporterFirstName: r.FormValue("reporterFirstName"),
		ReporterLastName:  r.FormValue("reporterLastName"),
	}

	var photo io.Reader
	var header *multipart.FileHeader
	file, fh, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer closeWithLog(file, "upload file", s.logger)
		photo, header = file, fh
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		writeError(w, http.StatusBadRequest, "failed to read photo")
		return
	}

	report, err := s.service.Create(r.Context(), draft, photo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if header != nil {
		s.metrics.UploadAccepted(header.Size)
	}

	base := s.baseURL(r)
	out := s.service.Dispatch(report, base, r.FormValue("whatsapp"))
	writeJSON(w, http.StatusCreated, createResponse{
		reportResponse: toReportResponse(report, base),
		Message:        out.Message,
		WhatsAppURL:    out.WhatsAppURL,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	reports, err := s.service.List(r.Context(), service.ListQuery{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	base := s.baseURL(r)
	out := make([]reportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toReportResponse(rep, base))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make(map[string]int, len(stats.ByStatus)+1)
	for st, n := range stats.ByStatus {
		out[string(st)] = n
	}
	out["total"] = stats.Total
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report, s.baseURL(r)))
}

func (s *Server) handleReportMessage(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := s.service.Dispatch(report, s.baseURL(r), r.URL.Query().Get("whatsapp"))
	writeJSON(w, http.StatusOK, dispatchResponse{Message: out.Message, WhatsAppURL: out.WhatsAppURL})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.service.UpdateStatus(r.Context(), r.PathValue("id"), req.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
