package admin

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/kroma-labs/readhedge/hedge"
	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/readpref"
	"github.com/rs/zerolog"
)

// ParameterValue describes one server parameter.
type ParameterValue struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Default any    `json:"default"`
}

// DecisionResponse explains a hedging decision.
type DecisionResponse struct {
	Hedge                   bool                    `json:"hedge"`
	Reason                  hedge.Reason            `json:"reason"`
	MaxTimeMSForHedgedReads *int                    `json:"maxTimeMSForHedgedReads,omitempty"`
	ReadPreference          readpref.ReadPreference `json:"readPreference"`
	Parameters              params.Snapshot         `json:"parameters"`
}

type setParameterRequest struct {
	Value json.RawMessage `json:"value"`
}

type handlers struct {
	store        *params.Store
	decider      *hedge.Decider
	maxBodyBytes int64
	logger       zerolog.Logger
	observe      func(parameter, outcome string)
}

func (h *handlers) listParameters(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.store.Parameters(), "")
}

func (h *handlers) getParameter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	pv, err := h.describe(name)
	if err != nil {
		h.writeParameterError(w, name, err)
		return
	}
	writeSuccess(w, http.StatusOK, pv, "")
}

func (h *handlers) setParameter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.store.Get(name); err != nil {
		h.writeParameterError(w, name, err)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req setParameterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body",
			Error{Field: "body", Message: err.Error()})
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body",
			Error{Field: "value", Message: "is required"})
		return
	}

	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body",
			Error{Field: "value", Message: err.Error()})
		return
	}

	if err := h.store.Set(r.Context(), name, value); err != nil {
		h.observe(name, "rejected")
		h.writeParameterError(w, name, err)
		return
	}
	h.observe(name, "set")

	pv, _ := h.describe(name)
	writeSuccess(w, http.StatusOK, pv, "parameter updated")
}

func (h *handlers) resetParameter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.store.Get(name); err != nil {
		h.writeParameterError(w, name, err)
		return
	}
	if err := h.store.Reset(r.Context(), name); err != nil {
		h.writeParameterError(w, name, err)
		return
	}
	h.observe(name, "reset")

	pv, _ := h.describe(name)
	writeSuccess(w, http.StatusOK, pv, "parameter reset to default")
}

func (h *handlers) decide(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	pref, err := readpref.Parse(body)
	if err != nil {
		field := "body"
		var perr *readpref.ParseError
		if errors.As(err, &perr) && perr.Field != "" {
			field = perr.Field
		}
		writeError(w, http.StatusBadRequest, "invalid read preference",
			Error{Field: field, Message: err.Error()})
		return
	}

	d := h.decider.Decide(r.Context(), pref)
	resp := DecisionResponse{
		Hedge:          d.Hedge,
		Reason:         d.Reason,
		ReadPreference: pref,
		Parameters:     d.Snapshot,
	}
	if d.Hedge {
		ms := d.Options.MaxTimeMSForHedgedReads
		resp.MaxTimeMSForHedgedReads = &ms
	}
	writeSuccess(w, http.StatusOK, resp, "")
}

func (h *handlers) describe(name string) (ParameterValue, error) {
	value, err := h.store.Get(name)
	if err != nil {
		return ParameterValue{}, err
	}
	def, err := h.store.Defaults().Value(name)
	if err != nil {
		return ParameterValue{}, err
	}
	return ParameterValue{Name: name, Value: value, Default: def}, nil
}

func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large",
				Error{Field: "body", Message: err.Error()})
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "unreadable request body",
			Error{Field: "body", Message: err.Error()})
		return nil, false
	}
	return body, true
}

func (h *handlers) writeParameterError(w http.ResponseWriter, name string, err error) {
	var verr *params.ValidationError
	switch {
	case errors.Is(err, params.ErrUnknownParameter):
		writeError(w, http.StatusNotFound, "unknown parameter",
			Error{Field: name, Message: err.Error()})
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "invalid parameter value",
			Error{Field: name, Message: verr.Reason})
	default:
		h.logger.Error().Err(err).Str("parameter", name).Msg("parameter operation failed")
		writeError(w, http.StatusInternalServerError, "internal server error",
			Error{Field: name, Message: "an unexpected error occurred"})
	}
}
