package render

import (
	"fmt"
	"net/http"

	"github.com/balancedhttp/core/internal/core/constants"
	"github.com/balancedhttp/core/internal/core/domain"
)

// XMLRenderer passes through a response whose Content-Type is XML unchanged
// (ss4.G). The Handler Pipeline does not transcode bodies; it only decides
// which renderer owns the wire format.
type XMLRenderer struct{}

func NewXMLRenderer() *XMLRenderer { return &XMLRenderer{} }

func (r *XMLRenderer) Name() string { return "xml" }

func (r *XMLRenderer) CanApply(req *http.Request, result *domain.RequestResult) bool {
	if result == nil || result.RawResponse == nil {
		return false
	}
	return contains(result.RawResponse.Header.Get(constants.ContentTypeHeader), constants.ContentTypeXML)
}

func (r *XMLRenderer) Render(w http.ResponseWriter, req *http.Request, result *domain.RequestResult) error {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeXML)
	w.WriteHeader(normaliseStatus(result))
	_, err := w.Write(result.Body)
	return err
}

// TextRenderer is the fallback renderer: lowest priority, CanApply always
// true, so Select never returns nil (ss4.G, "first-applicable-wins").
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer { return &TextRenderer{} }

func (r *TextRenderer) Name() string { return "text" }

func (r *TextRenderer) CanApply(req *http.Request, result *domain.RequestResult) bool {
	return true
}

func (r *TextRenderer) Render(w http.ResponseWriter, req *http.Request, result *domain.RequestResult) error {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeText)
	w.WriteHeader(normaliseStatus(result))

	if len(result.Body) > 0 {
		_, err := w.Write(result.Body)
		return err
	}
	_, err := fmt.Fprint(w, result.Data)
	return err
}
