package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mediaconv/internal/conversion"
	"mediaconv/internal/history"
	"mediaconv/internal/logging"
	"mediaconv/internal/workspace"
)

const rootMessage = "mediaconv converter API is running"

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type convertResponse struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

type conversionsResponse struct {
	Conversions []history.Entry `json:"conversions"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, statusMessage{Status: string(conversion.StatusSuccess), Message: rootMessage})
}

func (s *Server) handleConvert(kind workspace.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		source := strings.TrimSpace(r.URL.Query().Get("url"))
		if source == "" {
			s.writeError(w, http.StatusBadRequest, "missing url parameter")
			return
		}
		if s.converter == nil {
			s.writeError(w, http.StatusServiceUnavailable, "converter unavailable")
			return
		}

		res, err := s.converter.Submit(r.Context(), conversion.Request{SourceURL: source, Kind: kind})
		if err != nil {
			if errors.Is(err, conversion.ErrPoolClosed) {
				s.writeError(w, http.StatusServiceUnavailable, "server is shutting down")
				return
			}
			logging.WithContext(r.Context(), s.logger).Info("conversion abandoned by client", logging.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if !res.Succeeded() {
			s.writeError(w, http.StatusInternalServerError, res.Error)
			return
		}
		s.writeJSON(w, http.StatusOK, convertResponse{
			Status: string(conversion.StatusSuccess),
			Title:  res.Title,
			URL:    res.URL,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.status == nil {
		s.writeJSON(w, http.StatusOK, statusMessage{Status: string(conversion.StatusSuccess), Message: rootMessage})
		return
	}
	s.writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.history == nil {
		s.writeJSON(w, http.StatusOK, conversionsResponse{Conversions: []history.Entry{}})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, 500)
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, conversionsResponse{Conversions: entries})
}
