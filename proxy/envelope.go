package proxy

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const jsonContentType = "application/json; charset=utf-8"

// Envelope is the externalized error shape of the gateway. Every error
// originated inside the gateway, and every upstream error without a
// usable body, is answered in this form.
type Envelope struct {
	Success          bool              `json:"success"`
	Code             string            `json:"code"`
	Message          string            `json:"message"`
	Status           int               `json:"status"`
	Error            string            `json:"error"`
	Path             string            `json:"path"`
	Method           string            `json:"method"`
	Timestamp        string            `json:"timestamp"`
	CorrelationID    string            `json:"correlationId"`
	Details          *string           `json:"details"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// ValidationError mirrors the field-level errors of the back-end
// services, passed through in wrapped upstream responses.
type ValidationError struct {
	Field         string `json:"field"`
	RejectedValue any    `json:"rejectedValue"`
	Message       string `json:"message"`
	Code          string `json:"code"`
}

func newEnvelope(r *http.Request, correlationID, code, message string, status int) *Envelope {
	return &Envelope{
		Code:          code,
		Message:       message,
		Status:        status,
		Error:         http.StatusText(status),
		Path:          r.URL.Path,
		Method:        r.Method,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID,
	}
}

func isJSONContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}

	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// writeEnvelope emits the envelope and returns the number of body
// bytes written.
func writeEnvelope(w http.ResponseWriter, e *Envelope) int64 {
	b, err := json.Marshal(e)
	if err != nil {
		// must not happen, the envelope marshals to plain JSON
		log.Errorf("failed to marshal error envelope: %v", err)
		b = []byte(`{"success":false,"code":"INTERNAL_ERROR"}`)
	}

	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(e.Status)
	n, _ := w.Write(b)
	return int64(n)
}
