package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sweeney/power-sensor/internal/eventlog"
	"github.com/sweeney/power-sensor/internal/logic"
	"github.com/sweeney/power-sensor/internal/monitor"
)

// maxLogBody bounds PUT /api/log.
const maxLogBody = 8 << 20

// PowerJSON is the body of GET /api/power.
type PowerJSON struct {
	Kind   logic.Kind `json:"kind"`
	Source string     `json:"source"`
	Live   bool       `json:"live"` // false when served from the last reading
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorJSON{Error: err.Error()})
}

// errorStatus maps pipeline errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, monitor.ErrInvalidLog), errors.Is(err, monitor.ErrInvalidKind):
		return http.StatusUnprocessableEntity
	case errors.Is(err, monitor.ErrStopped), errors.Is(err, eventlog.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		// *eventlog.PersistenceError and anything unexpected
		return http.StatusInternalServerError
	}
}

func parseKindParam(s string) (logic.Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	return logic.ParseKind(s)
}

func (s *Server) handleReadLog(w http.ResponseWriter, r *http.Request) {
	l, err := s.backend.ReadLog(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("read log")
		writeError(w, errorStatus(err), err)
		return
	}
	if l == nil {
		l = logic.Log{}
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleWriteLog(w http.ResponseWriter, r *http.Request) {
	var l logic.Log
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLogBody))
	if err := dec.Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.WriteLog(r.Context(), l); err != nil {
		code := errorStatus(err)
		if code >= 500 {
			s.log.Error().Err(err).Msg("write log")
		}
		writeError(w, code, err)
		return
	}
	if e, ok := l.Latest(); ok {
		s.tracker.SetLastEvent(e)
	} else {
		s.tracker.ClearLastEvent()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if s.power != nil {
		k, err := s.power.Read()
		if err == nil {
			writeJSON(w, http.StatusOK, PowerJSON{Kind: k, Source: k.Source(), Live: true})
			return
		}
		s.log.Warn().Err(err).Msg("power read for api failed, using last reading")
	}

	k := s.tracker.Snapshot().Power
	if k == "" {
		writeError(w, http.StatusServiceUnavailable, errors.New("power state unknown"))
		return
	}
	writeJSON(w, http.StatusOK, PowerJSON{Kind: k, Source: k.Source()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		date = logic.DayKey(s.now())
	}
	kind, err := parseKindParam(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := logic.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.backend.Query(r.Context(), date, kind)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
