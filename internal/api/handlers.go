package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/internal/archive"
	"github.com/FocuswithJustin/JuniperStemma/internal/ingest"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
	"github.com/FocuswithJustin/JuniperStemma/internal/pipeline"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
	"github.com/FocuswithJustin/JuniperStemma/internal/validation"
)

// HealthInfo is returned by GET /health.
type HealthInfo struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	Manuscripts int    `json:"manuscripts"`
	Clients     int    `json:"ws_clients"`
}

// analysisRequest is the body of POST /collate, /differences, /distance,
// /tree and /export. Query parameters fill whatever the body leaves empty.
type analysisRequest struct {
	IDs      []string `json:"ms_ids" validate:"required,max=200,dive,required,max=128"`
	Method   string   `json:"method,omitempty" validate:"omitempty,max=32"`
	Format   string   `json:"format,omitempty" validate:"omitempty,oneof=base64 png svg newick"`
	Strategy string   `json:"strategy,omitempty" validate:"omitempty,max=32"`
	DPI      int      `json:"dpi,omitempty" validate:"omitempty,min=10,max=1200"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Endpoint not found")
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"name":    "Juniper Stemma API",
		"version": s.version,
		"endpoints": []string{
			"GET /health",
			"GET /manuscripts",
			"POST /manuscripts",
			"GET /manuscripts/{id}",
			"DELETE /manuscripts/{id}",
			"GET /manuscripts/{id}/verses",
			"GET /manuscripts/{id}/verses/{verse}",
			"GET|POST /collate",
			"GET|POST /differences",
			"GET|POST /distance",
			"GET|POST /tree",
			"GET|POST /export",
			"GET /artifacts/{hash}",
			"GET /metrics",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	list, err := s.manuscripts(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, HealthInfo{
		Status:      "healthy",
		Version:     s.version,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Manuscripts: len(list),
		Clients:     s.hub.Clients(),
	})
}

func (s *Server) handleListManuscripts(w http.ResponseWriter, r *http.Request) {
	list, err := s.manuscripts(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	respondList(w, r, list, len(list))
}

// handleUpload accepts a multipart "file" field (TEI or JSON, checked by
// content sniffing) or a raw JSON manuscript document.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	var (
		m   *store.Manuscript
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		m, err = s.readMultipart(r)
	case "application/json", "":
		m, err = ingest.LoadJSON(r.Body, "")
	default:
		err = errors.NewUnsupported("content type", mediaType)
	}
	if err != nil {
		s.respondUploadErr(w, r, err)
		return
	}

	id, err := s.svc.Store.Put(r.Context(), m)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.summaries.Invalidate()
	m.ID = id
	logging.InfoContext(r.Context(), "manuscript_imported",
		"id", id, "filename", m.Filename, "verses", len(m.Verses))
	respond(w, r, http.StatusCreated, m)
}

func (s *Server) readMultipart(r *http.Request) (*store.Manuscript, error) {
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		return nil, errors.NewValidation("file", "failed to parse multipart form or file too large")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.NewValidation("file", "missing file field")
	}
	defer file.Close()

	name, err := validation.SanitizeFilename(header.Filename)
	if err != nil {
		return nil, err
	}
	kind, body, err := validation.DetectUpload(file, name)
	if err != nil {
		return nil, err
	}
	if kind == validation.KindBundle {
		return nil, errors.NewUnsupported("manuscript upload", "report bundles cannot be imported as manuscripts")
	}
	return ingest.Load(body, string(kind), name)
}

func (s *Server) respondUploadErr(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		respondError(w, r, http.StatusRequestEntityTooLarge, CodeValidation,
			fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit))
	case errors.Is(err, validation.ErrUnsupportedType), errors.Is(err, validation.ErrTypeMismatch):
		respondError(w, r, http.StatusUnsupportedMediaType, CodeUnsupported, err.Error())
	case errors.Is(err, validation.ErrInvalidFilename), errors.Is(err, validation.ErrPathTooLong):
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	default:
		respondErr(w, r, err)
	}
}

func (s *Server) handleGetManuscript(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, m)
}

func (s *Server) handleDeleteManuscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Store.Delete(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	s.summaries.Invalidate()
	respond(w, r, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleVerses(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondList(w, r, m.Verses, len(m.Verses))
}

func (s *Server) handleVerse(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	v, ok := m.Verse(r.PathValue("verse"))
	if !ok {
		respondErr(w, r, errors.NewNotFound("verse", r.PathValue("verse")))
		return
	}
	respond(w, r, http.StatusOK, v)
}

// collateResponse maps every collated verse to its table or error marker.
type collateResponse struct {
	Manuscripts []pipeline.Witness `json:"manuscripts"`
	Alignments  map[string]any     `json:"alignments"`
}

func (s *Server) handleCollate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.analysisRequest(w, r)
	if !ok {
		return
	}
	comparison, err := s.svc.Collate(s.progress(r, "collate"), req.IDs)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.complete(r, "collate")
	respond(w, r, http.StatusOK, collateResponse{
		Manuscripts: comparison.Manuscripts,
		Alignments:  comparison.Alignments(),
	})
}

func (s *Server) handleDifferences(w http.ResponseWriter, r *http.Request) {
	req, ok := s.analysisRequest(w, r)
	if !ok {
		return
	}
	rep, err := s.svc.Differences(s.progress(r, "differences"), req.IDs)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.complete(r, "differences")
	respond(w, r, http.StatusOK, rep)
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	req, ok := s.analysisRequest(w, r)
	if !ok {
		return
	}
	var strategy distance.Strategy
	if req.Strategy != "" {
		parsed, err := distance.ParseStrategy(req.Strategy)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		strategy = parsed
	}
	rep, err := s.svc.Distance(s.progress(r, "distance"), req.IDs, strategy)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.complete(r, "distance")
	respond(w, r, http.StatusOK, rep)
}

// treeResponse adds the artifact address of PNG and SVG renderings.
type treeResponse struct {
	*pipeline.TreeReport
	Artifact    string `json:"artifact,omitempty"`
	ArtifactURL string `json:"artifact_url,omitempty"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	req, ok := s.analysisRequest(w, r)
	if !ok {
		return
	}
	opts := stemma.Options{Method: req.Method, DPI: req.DPI}
	if opts.Method == "" {
		opts.Method = s.cfg.Tree.Method
	}
	if opts.DPI == 0 {
		opts.DPI = s.cfg.Tree.DPI
	}
	format := req.Format
	if format == "" {
		format = s.cfg.Tree.Format
	}
	mode, err := stemma.ParseMode(format)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	opts.Mode = mode

	rep, err := s.svc.Tree(s.progress(r, "tree"), req.IDs, opts)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	resp := treeResponse{TreeReport: rep}
	if data := artifactBytes(rep.Result); data != nil && s.artifacts != nil {
		hash, err := s.artifacts.Put(data)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		resp.Artifact = hash
		resp.ArtifactURL = "/artifacts/" + hash
	}
	s.complete(r, "tree")
	respond(w, r, http.StatusOK, resp)
}

// artifactBytes returns the rendering worth storing for the result's mode.
func artifactBytes(res *stemma.Result) []byte {
	switch res.Mode {
	case stemma.ModePNG:
		return res.Image
	case stemma.ModeSVG:
		return []byte(res.SVG)
	}
	return nil
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		respondErr(w, r, errors.NewNotFound("artifact", r.PathValue("hash")))
		return
	}
	data, err := s.artifacts.Get(r.PathValue("hash"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	mt := mimetype.Detect(data)
	w.Header().Set("Content-Type", mt.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}

// handleExport streams a report bundle.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := s.analysisRequest(w, r)
	if !ok {
		return
	}
	method := req.Method
	if method == "" {
		method = s.cfg.Tree.Method
	}
	rep, err := s.svc.Report(s.progress(r, "export"), req.IDs, method)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	entries, err := archive.Entries(rep)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.complete(r, "export")
	w.Header().Set("Content-Type", "application/x-xz")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "stemma-"+rep.GeneratedAt.Format("20060102T150405Z")+archive.Extension))
	if err := archive.Write(w, entries, rep.GeneratedAt); err != nil {
		logging.ErrorContext(r.Context(), "failed to stream export", "error", err)
	}
}

// analysisRequest reads ms_ids and options from a JSON body (POST) and the
// query string. ms_ids may repeat or be comma-separated.
func (s *Server) analysisRequest(w http.ResponseWriter, r *http.Request) (*analysisRequest, bool) {
	req := &analysisRequest{}
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		body := http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(body).Decode(req); err != nil && err != io.EOF {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "invalid JSON body: "+err.Error())
			return nil, false
		}
	}

	q := r.URL.Query()
	if len(req.IDs) == 0 {
		for _, v := range q["ms_ids"] {
			for _, id := range strings.Split(v, ",") {
				if id = strings.TrimSpace(id); id != "" {
					req.IDs = append(req.IDs, id)
				}
			}
		}
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(q.Get(key))
		}
	}
	fill(&req.Method, "method")
	fill(&req.Format, "format")
	fill(&req.Strategy, "strategy")
	if req.DPI == 0 && q.Get("dpi") != "" {
		dpi, err := strconv.Atoi(q.Get("dpi"))
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "dpi must be an integer")
			return nil, false
		}
		req.DPI = dpi
	}
	req.Format = strings.ToLower(req.Format)

	if err := s.validate.Struct(req); err != nil {
		respondErr(w, r, err)
		return nil, false
	}
	return req, true
}

// progress attaches a websocket progress callback to the request context.
func (s *Server) progress(r *http.Request, operation string) context.Context {
	return pipeline.WithProgress(r.Context(), s.hub.Progress(operation, logging.GetRequestID(r.Context())))
}

func (s *Server) complete(r *http.Request, operation string) {
	s.hub.Broadcast(ProgressMessage{
		Type:      "complete",
		Operation: operation,
		Progress:  100,
		RequestID: logging.GetRequestID(r.Context()),
	})
}
