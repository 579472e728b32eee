package httpclient

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/balancedhttp/core/internal/core/domain"
	"github.com/balancedhttp/core/pkg/pool"
)

// boundary is derived once per process, not per request, matching the
// original's single random boundary reused by the running process (ss6,
// "Multipart bodies").
var boundary = generateBoundary()

func generateBoundary() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return "BHTTP" + hex.EncodeToString(b)
}

// ProcessBoundary returns this process's multipart boundary.
func ProcessBoundary() string { return boundary }

var bufferPool = pool.NewLitePool(func() *bytes.Buffer { return &bytes.Buffer{} })

// FilePart is one file field in a multipart body.
type FilePart struct {
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}

// buildMultipartFromDomain adapts domain.MultipartFile (the adapter-free
// mirror ApplyConstructionRules is written against) to FilePart so
// BuildMultipart can be injected into the domain layer without the domain
// package importing this one.
func buildMultipartFromDomain(fields map[string][]string, files []domain.MultipartFile) ([]byte, string) {
	parts := make([]FilePart, len(files))
	for i, f := range files {
		parts[i] = FilePart{Name: f.Name, Filename: f.Filename, ContentType: f.ContentType, Content: f.Content}
	}
	return BuildMultipart(fields, parts)
}

// BuildMultipart assembles a multipart/form-data body from scalar/list
// fields and files, using the process boundary (ss6). List-valued fields
// emit one part per element; a file's Content-Type defaults to a
// guess-by-extension, falling back to application/octet-stream.
func BuildMultipart(fields map[string][]string, files []FilePart) (body []byte, contentType string) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)
	buf.Reset()

	for name, values := range fields {
		for _, v := range values {
			fmt.Fprintf(buf, "--%s\r\n", boundary)
			fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}

	for _, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(f.Filename))
		}
		if ct == "" {
			ct = "application/octet-stream"
		}
		fmt.Fprintf(buf, "--%s\r\n", boundary)
		fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q; filename=%q\r\n", f.Name, f.Filename)
		fmt.Fprintf(buf, "Content-Type: %s\r\n\r\n", ct)
		buf.Write(f.Content)
		buf.WriteString("\r\n")
	}

	fmt.Fprintf(buf, "--%s--\r\n", boundary)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, "multipart/form-data; boundary=" + boundary
}
