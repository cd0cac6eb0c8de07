package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/MrEthical07/authx"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const badBodyMessage = "Invalid request body"

var errBadBody = errors.New("invalid request body")

type envelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	User    *authx.PublicAccount `json:"user,omitempty"`
	Details string               `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) ok(w http.ResponseWriter, status int, message string, user *authx.PublicAccount) {
	writeJSON(w, status, envelope{Success: true, Message: message, User: user})
}

// fail answers business errors with businessStatus and everything else with 500.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, businessStatus int, err error) {
	if errors.Is(err, errBadBody) {
		writeJSON(w, http.StatusBadRequest, envelope{Message: badBodyMessage})
		return
	}
	if authx.KindOf(err) != authx.KindInternal {
		writeJSON(w, businessStatus, envelope{Message: authx.MessageOf(err)})
		return
	}

	h.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	resp := envelope{Message: authx.ErrInternal.Message}
	if h.dev {
		resp.Details = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decodeFields reads the named string fields from a JSON, urlencoded, or multipart
// body. Missing fields and non-string JSON values decode as "".
func decodeFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, errBadBody
		}
		for _, name := range names {
			out[name] = r.PostForm.Get(name)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, errBadBody
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		for _, name := range names {
			out[name] = r.PostFormValue(name)
		}
	default:
		raw := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, errBadBody
		}
		for _, name := range names {
			if s, ok := raw[name].(string); ok {
				out[name] = s
			}
		}
	}
	return out, nil
}
