package restoration

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"archRenew/internal/logging"
	"archRenew/internal/storage"
)

const (
	maxImageBytes   = 20 * 1024 * 1024 // 20 MB
	maxRequestBytes = maxImageBytes*4/3 + (1 << 20)
)

// Runner executes a restoration.
type Runner interface {
	Run(ctx context.Context, req Request) (storage.Restoration, error)
}

// Handler bundles dependencies for restoration endpoints.
type Handler struct {
	Runner Runner
	Store  storage.ResultStore
	Logger *zerolog.Logger
}

// CreateRequest is the JSON body of a restoration request. Coordinates may be
// sent as strings or numbers.
type CreateRequest struct {
	ImageData string          `json:"image_data"`
	Options   storage.Options `json:"options"`
	Address   string          `json:"address"`
	Lat       coordinate      `json:"lat"`
	Lon       coordinate      `json:"lon"`
}

type coordinate string

func (c *coordinate) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		*c = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*c = coordinate(s)
	default:
		*c = coordinate(raw)
	}
	return nil
}

// Create handles POST /api/restorations and POST /restore.
func (h Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Logger)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var (
		req Request
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = parseMultipartRequest(r)
	} else {
		req, err = parseJSONRequest(r)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rec, err := h.Runner.Run(r.Context(), req)
	if err != nil {
		var (
			cfgErr      *ConfigurationError
			pipelineErr *PipelineError
		)
		switch {
		case errors.Is(err, ErrEmptyImage):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image data provided"})
		case errors.As(err, &cfgErr):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":   cfgErr.Error(),
				"help":    cfgErr.Help,
				"missing": cfgErr.Missing,
			})
		case errors.As(err, &pipelineErr):
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": pipelineErr.Error(),
				"help":  PipelineHelp,
				"id":    pipelineErr.ID,
			})
		default:
			log.Error().Err(err).Msg("restoration failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Get handles GET /api/restorations/{id}.
func (h Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Image handles GET /api/restorations/{id}/images/{kind}.
func (h Handler) Image(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != "original" && kind != "restored" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown image kind"})
		return
	}
	rec, ok := h.load(w, r)
	if !ok {
		return
	}

	data := rec.OriginalImage
	if kind == "restored" {
		data = rec.RestoredImage
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

// Styles handles GET /api/styles.
func (h Handler) Styles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":  Styles,
		"default": DefaultStyle,
	})
}

func (h Handler) load(w http.ResponseWriter, r *http.Request) (storage.Restoration, bool) {
	id := chi.URLParam(r, "id")
	rec, found, err := h.Store.Get(r.Context(), id)
	if err != nil {
		log := logging.OrNop(h.Logger)
		log.Error().Err(err).Str("restoration_id", id).Msg("load restoration failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load restoration"})
		return storage.Restoration{}, false
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "restoration not found"})
		return storage.Restoration{}, false
	}
	return rec, true
}

func parseJSONRequest(r *http.Request) (Request, error) {
	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return Request{}, fmt.Errorf("invalid request body")
	}
	image, err := decodeImageData(body.ImageData)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Image:   image,
		Options: body.Options,
		Address: body.Address,
		Lat:     string(body.Lat),
		Lon:     string(body.Lon),
	}, nil
}

func parseMultipartRequest(r *http.Request) (Request, error) {
	if err := r.ParseMultipartForm(maxImageBytes + (1 << 20)); err != nil {
		return Request{}, fmt.Errorf("invalid multipart payload: %w", err)
	}

	req := Request{
		Address: r.FormValue("address"),
		Lat:     r.FormValue("lat"),
		Lon:     r.FormValue("lon"),
		Options: storage.Options{
			Style:            strings.TrimSpace(r.FormValue("style")),
			PreserveHeritage: formBool(r.FormValue("preserve_heritage")),
			Landscaping:      formBool(r.FormValue("landscaping")),
			Lighting:         formBool(r.FormValue("lighting")),
			ExpandBuilding:   formBool(r.FormValue("expand_building")),
		},
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			image, err := decodeImageData(r.FormValue("image_data"))
			req.Image = image
			return req, err
		}
		return req, fmt.Errorf("could not read image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		return req, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return req, fmt.Errorf("image too large (max %d MB)", maxImageBytes/(1024*1024))
	}
	req.Image = data
	return req, nil
}

// decodeImageData accepts plain base64 or a data URL. Empty input yields no
// bytes so the orchestrator can report the missing image.
func decodeImageData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "data:") {
		parts := strings.SplitN(raw, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid image data URL")
		}
		raw = parts[1]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return nil, fmt.Errorf("image data is not valid base64")
		}
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image too large (max %d MB)", maxImageBytes/(1024*1024))
	}
	return data, nil
}

func formBool(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "on" || value == "yes" {
		return true
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
