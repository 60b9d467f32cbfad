package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/model"
	"github.com/sells-group/lead-concierge/internal/store"
)

const defaultListLimit = 100

var exportContentTypes = map[store.Format]string{
	store.FormatJSON: "application/json",
	store.FormatCSV:  "text/csv; charset=utf-8",
	store.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	filter := store.LeadFilter{Limit: defaultListLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("quality"); v != "" {
		q := model.Quality(strings.ToLower(v))
		if !slices.Contains(model.Qualities, q) {
			writeError(w, http.StatusBadRequest, "quality must be one of hot, warm, cool, cold")
			return
		}
		filter.Quality = q
	}

	all, err := s.leads.List(r.Context(), store.LeadFilter{})
	if err != nil {
		internalError(w, r, err)
		return
	}
	leads, err := s.leads.List(r.Context(), filter)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.LeadRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"leads":      leads,
		"count":      len(leads),
		"total":      len(all),
		"by_quality": store.Summarize(all).ByQuality,
	})
}

func (s *Server) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	format, err := store.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "format must be one of json, csv, xlsx")
		return
	}
	recs, err := s.leads.List(r.Context(), store.LeadFilter{})
	if err != nil {
		internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := store.Export(&buf, format, recs); err != nil {
		internalError(w, r, err)
		return
	}

	filename := fmt.Sprintf("leads_%s.%s", s.now().UTC().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", exportContentTypes[format])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.leads.Get(r.Context(), id)
	if errors.Is(err, store.ErrLeadNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := map[string]any{"lead": rec}
	if s.ledger != nil {
		deliveries, err := s.ledger.Deliveries(r.Context(), id)
		if err != nil {
			zap.L().Warn("api: load deliveries", zap.String("lead_id", id), zap.Error(err))
		} else {
			if deliveries == nil {
				deliveries = []store.Delivery{}
			}
			resp["deliveries"] = deliveries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.leads.Delete(r.Context(), id)
	if errors.Is(err, store.ErrLeadNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	if s.ledger != nil {
		if err := s.ledger.Forget(r.Context(), id); err != nil {
			zap.L().Warn("api: forget lead in ledger", zap.String("lead_id", id), zap.Error(err))
		}
	}
	zap.L().Info("api: lead deleted", zap.String("lead_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	recs, err := s.leads.List(r.Context(), store.LeadFilter{})
	if err != nil {
		internalError(w, r, err)
		return
	}

	resp := map[string]any{
		"leads":           store.Summarize(recs),
		"active_sessions": s.conv.ActiveSessions(),
	}
	if s.ledger != nil {
		stats, err := s.ledger.Stats(r.Context())
		if err != nil {
			zap.L().Warn("api: ledger stats", zap.Error(err))
		} else {
			resp["deliveries"] = stats
		}
	}
	if s.circuits != nil {
		if states := s.circuits(); len(states) > 0 {
			resp["circuits"] = states
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
