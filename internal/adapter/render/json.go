package render

import (
	"encoding/json"
	"net/http"

	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/core/domain"
)

// JSONRenderer renders a result whose Data is not a string as a JSON
// document ([]byte Data is encoded as a base64 JSON string), or passes
// through bytes that already came back as a JSON response body (ss4.G).
type JSONRenderer struct{}

func NewJSONRenderer() *JSONRenderer { return &JSONRenderer{} }

func (r *JSONRenderer) Name() string { return "json" }

func (r *JSONRenderer) CanApply(req *http.Request, result *domain.RequestResult) bool {
	if result == nil {
		return false
	}
	accept := req.Header.Get(constants.HeaderAccept)
	if accept != "" && !contains(accept, constants.ContentTypeJSON) && !contains(accept, "*/*") {
		return false
	}
	if result.RawResponse != nil {
		return contains(result.RawResponse.Header.Get(constants.ContentTypeHeader), constants.ContentTypeJSON)
	}
	_, isString := result.Data.(string)
	return !isString
}

func (r *JSONRenderer) Render(w http.ResponseWriter, req *http.Request, result *domain.RequestResult) error {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
	status := normaliseStatus(result)
	w.WriteHeader(status)

	if len(result.Body) > 0 {
		_, err := w.Write(result.Body)
		return err
	}
	return json.NewEncoder(w).Encode(result.Data)
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func normaliseStatus(result *domain.RequestResult) int {
	code := result.StatusCode()
	if code == 0 {
		return http.StatusOK
	}
	return constants.NormaliseStatusCode(code)
}
