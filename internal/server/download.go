package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mediaconv/internal/logging"
	"mediaconv/internal/services"
	"mediaconv/internal/textutil"
)

const fileNotFound = "File not found"

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, s.downloadPrefix+"/")
	if s.workspace == nil {
		s.writeError(w, http.StatusNotFound, fileNotFound)
		return
	}
	path, err := s.workspace.Resolve(name)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			logging.WithContext(r.Context(), s.logger).Warn("download resolve failed", logging.Error(err))
		}
		s.writeError(w, http.StatusNotFound, fileNotFound)
		return
	}

	file, err := os.Open(path)
	if err != nil {
		// Swept between resolve and open.
		s.writeError(w, http.StatusNotFound, fileNotFound)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeError(w, http.StatusNotFound, fileNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", s.contentDisposition(r, name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// contentDisposition forces an attachment. When history knows the display
// title it is offered as the suggested name, otherwise the stored name is.
func (s *Server) contentDisposition(r *http.Request, name string) string {
	display := name
	if s.history != nil {
		entry, err := s.history.LookupByFile(r.Context(), name)
		if err == nil && strings.TrimSpace(entry.Title) != "" {
			display = entry.Title + filepath.Ext(name)
		}
	}
	return attachmentHeader(display, name)
}

// attachmentHeader emits a quoted ASCII filename plus the RFC 5987 form of
// display. fallback is used when display has no ASCII rendering.
func attachmentHeader(display, fallback string) string {
	ext := filepath.Ext(display)
	ascii := textutil.ASCIIFileName(strings.TrimSuffix(display, ext), ext)
	if ascii == "" {
		ascii = fallback
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii, encodeRFC5987(display))
}

// encodeRFC5987 percent-encodes every byte outside the attr-char set.
func encodeRFC5987(value string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
