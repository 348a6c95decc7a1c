package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/enterprise-tool-router/internal/routererr"
)

// Response is the router's generic JSON envelope for handlers that do
// not have a fixed external wire shape of their own (everything but
// POST /query, whose response shape is pinned by spec §6).
type Response struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorInfo is the error half of Response.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return
	}
}

// WriteSuccess writes data wrapped in a successful Response envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// WriteRouterError writes err, a router error, as a Response with the
// given status, logging via logger.
func WriteRouterError(w http.ResponseWriter, status int, err *routererr.Error, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("request rejected",
			zap.String("category", string(err.Kind)),
			zap.String("message", err.Message),
		)
	}
	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(err.Kind),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now().UTC(),
	})
}

// DecodeJSONBody decodes r's body into dst, rejecting bodies over 1 MB
// and unknown fields. On failure it writes a 400 response and returns
// the error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := routererr.New(routererr.KindValidation, "request body is empty")
		WriteRouterError(w, http.StatusBadRequest, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := routererr.New(routererr.KindValidation, "invalid JSON body").WithCause(err)
		WriteRouterError(w, http.StatusBadRequest, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType reports whether r's Content-Type is application/json,
// writing a 400 response and returning false otherwise.
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		apiErr := routererr.New(routererr.KindValidation, "Content-Type must be application/json")
		WriteRouterError(w, http.StatusBadRequest, apiErr, logger)
		return false
	}
	return true
}

// ResponseWriter wraps http.ResponseWriter to capture the status code
// written, for logging middleware.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
