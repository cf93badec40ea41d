package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/wa-scheduler/internal/deeplink"
	"github.com/LeventeLantos/wa-scheduler/internal/model"
	"github.com/LeventeLantos/wa-scheduler/internal/notify"
	"github.com/LeventeLantos/wa-scheduler/internal/prefs"
	"github.com/LeventeLantos/wa-scheduler/internal/repo"
	"github.com/LeventeLantos/wa-scheduler/internal/scheduler"
	"github.com/LeventeLantos/wa-scheduler/internal/service"
)

// maxBodyBytes leaves room for inline media data URLs.
const maxBodyBytes = 10 << 20

type Options struct {
	AppBaseURL            string
	DefaultAdvanceMinutes int
}

type Handler struct {
	sched *scheduler.Scheduler
	msgs  *service.MessageService
	prefs prefs.Store
	links *deeplink.Builder
	opts  Options
}

func NewHandler(s *scheduler.Scheduler, msgs *service.MessageService, p prefs.Store, links *deeplink.Builder, opts Options) *Handler {
	return &Handler{sched: s, msgs: msgs, prefs: p, links: links, opts: opts}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	h.writeSchedulerState(w)
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	h.writeSchedulerState(w)
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	h.writeSchedulerState(w)
}

func (h *Handler) writeSchedulerState(w http.ResponseWriter) {
	body := map[string]any{
		"running":         h.sched.IsRunning(),
		"intervalSeconds": int(h.sched.Interval().Seconds()),
	}
	if last := h.sched.LastTick(); !last.IsZero() {
		body["lastTick"] = last.UTC()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var in model.Message
	if !decodeBody(w, r, &in) {
		return
	}

	msg, err := h.msgs.Schedule(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = service.StatusAll
	}

	items, err := h.msgs.ListByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) UpcomingMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), service.DefaultUpcomingLimit)

	items, err := h.msgs.Upcoming(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.msgs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var in model.Message
	if !decodeBody(w, r, &in) {
		return
	}

	msg, err := h.msgs.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.msgs.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkSent(w http.ResponseWriter, r *http.Request) {
	msg, err := h.msgs.MarkSent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// OpenMessage is the only completion signal available: the user followed the
// deep link. The message is confirmed, then the browser is sent on to the
// messaging app.
func (h *Handler) OpenMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msg, err := h.msgs.MarkSent(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTerminal):
		msg, err = h.msgs.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
	case msg != nil:
		slog.Warn("open: confirmation incomplete", "message_id", id, "err", err)
	default:
		writeError(w, err)
		return
	}

	http.Redirect(w, r, h.links.Build(msg.Phone, msg.Text, msg.App), http.StatusFound)
}

func (h *Handler) ReminderClick(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, notify.EditURL(h.opts.AppBaseURL, r.PathValue("id")), http.StatusFound)
}

type preferencesBody struct {
	AdvanceMinutes *int `json:"advanceMinutes"`
	IsDefault      bool `json:"isDefault"`
}

func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	minutes, ok, err := h.prefs.AdvanceMinutes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		minutes = h.opts.DefaultAdvanceMinutes
	}
	writeJSON(w, http.StatusOK, preferencesBody{AdvanceMinutes: &minutes, IsDefault: !ok})
}

func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var in preferencesBody
	if !decodeBody(w, r, &in) {
		return
	}
	if in.AdvanceMinutes == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "advanceMinutes is required"})
		return
	}

	if err := h.prefs.SetAdvanceMinutes(r.Context(), *in.AdvanceMinutes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesBody{AdvanceMinutes: in.AdvanceMinutes})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid json: %v", err)})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrStale),
		errors.Is(err, service.ErrTerminal),
		errors.Is(err, repo.ErrConflict),
		errors.Is(err, repo.ErrAlreadyExists):
		return http.StatusConflict
	case isValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, repo.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func isValidation(err error) bool {
	for _, target := range []error{
		model.ErrInvalidPhone,
		model.ErrInvalidText,
		model.ErrInvalidSchedule,
		model.ErrInvalidApp,
		model.ErrInvalidRecurrence,
		model.ErrInvalidInterval,
		model.ErrInvalidStatus,
		prefs.ErrInvalidAdvance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func nonNil(items []model.Message) []model.Message {
	if items == nil {
		return []model.Message{}
	}
	return items
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
