package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zetlen/csvstream/internal/core"
	"github.com/zetlen/csvstream/internal/logging"
	"github.com/zetlen/csvstream/internal/source"
)

// handleHealth reports service liveness and ingest slot occupancy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"ingests": s.service.Limiter().Status(),
	})
}

// handleListDatasets returns all registered datasets.
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"datasets": core.AllDatasets()})
}

// handleIngest streams a CSV request body into the named dataset. Memory
// usage stays O(batch size) regardless of body size. The handler blocks
// until the ingest finishes because the body is only readable while the
// request is open; progress is observable concurrently via SSE.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	datasetKey := chi.URLParam(r, "datasetKey")
	if datasetKey == "" {
		writeError(w, http.StatusBadRequest, "missing dataset key")
		return
	}

	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxBodySize)

	encoding := r.Header.Get("Content-Encoding")
	body, err := source.Decode(r.Body, encoding)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	opts, err := ingestOptions(r, encoding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fileName := r.Header.Get("X-File-Name")

	id, err := s.service.StartIngest(r.Context(), datasetKey, fileName, body, opts)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrTooManyIngests):
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusTooManyRequests, err.Error())
		case strings.Contains(err.Error(), "unknown dataset"):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// The body is consumed on the ingest goroutine; wait here so it stays
	// readable until the ingest finishes.
	result, err := s.service.Result(r.Context(), id)
	if err != nil {
		log.Warn("client disconnected during ingest", "ingest", id, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest interrupted")
		return
	}

	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// ingestOptions extracts per-request parsing knobs from query parameters.
func ingestOptions(r *http.Request, encoding string) (core.IngestOptions, error) {
	var opts core.IngestOptions

	if d := r.URL.Query().Get("delimiter"); d != "" {
		switch {
		case d == "tab":
			opts.Delimiter = '\t'
		case len(d) == 1:
			opts.Delimiter = d[0]
		default:
			return opts, fmt.Errorf("delimiter must be a single character or %q", "tab")
		}
	}

	if strict := r.URL.Query().Get("strict"); strict != "" {
		v, err := strconv.ParseBool(strict)
		if err != nil {
			return opts, fmt.Errorf("invalid strict value %q", strict)
		}
		opts.StrictColumns = v
	}

	// Content-Length only measures the decoded stream for identity encoding.
	if (encoding == "" || strings.EqualFold(encoding, "identity")) && r.ContentLength > 0 {
		opts.TotalBytes = r.ContentLength
	}

	return opts, nil
}

// handleIngestProgress streams ingest progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := ingestID(w, r)
	if !ok {
		return
	}

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection.
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events the client already received before reconnecting.
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelIngest cancels an in-progress ingest.
func (s *Server) handleCancelIngest(w http.ResponseWriter, r *http.Request) {
	id, ok := ingestID(w, r)
	if !ok {
		return
	}

	if err := s.service.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleIngestResult returns the final result of an ingest, waiting for
// completion if it is still running.
func (s *Server) handleIngestResult(w http.ResponseWriter, r *http.Request) {
	id, ok := ingestID(w, r)
	if !ok {
		return
	}

	result, err := s.service.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrIngestNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListIngests returns recorded ingest outcomes, most recent first.
func (s *Server) handleListIngests(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	results, err := s.service.ListIngests(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ingests": results})
}

// handleExportFailedRows exports the validation-rejected rows of an ingest
// as CSV, with the line number and failure reasons prepended.
func (s *Server) handleExportFailedRows(w http.ResponseWriter, r *http.Request) {
	id, ok := ingestID(w, r)
	if !ok {
		return
	}

	failedRows, err := s.service.FailedRows(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrIngestNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Column headers are only known while the ingest is still tracked in
	// memory; the export degrades to unnamed columns afterwards.
	var headers []string
	if prog, err := s.service.Progress(id); err == nil {
		headers = prog.Headers
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("failed_rows_%s.csv", timestamp)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	csvWriter := csv.NewWriter(w)

	csvWriter.Write(append([]string{"_line", "_error"}, headers...))

	for _, row := range failedRows {
		record := append([]string{
			strconv.Itoa(row.Line),
			strings.Join(row.Reasons, "; "),
		}, row.Fields...)
		csvWriter.Write(record)
	}

	csvWriter.Flush()
}

// ingestID parses the ingest ID URL parameter, writing a 400 on failure.
func ingestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "ingestID")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ingest ID %q", raw))
		return uuid.Nil, false
	}
	return id, true
}
