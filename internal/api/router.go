package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/messages", h.CreateMessage)
	mux.HandleFunc("GET /v1/messages", h.ListMessages)
	mux.HandleFunc("GET /v1/messages/upcoming", h.UpcomingMessages)
	mux.HandleFunc("GET /v1/messages/{id}", h.GetMessage)
	mux.HandleFunc("PUT /v1/messages/{id}", h.UpdateMessage)
	mux.HandleFunc("DELETE /v1/messages/{id}", h.DeleteMessage)
	mux.HandleFunc("POST /v1/messages/{id}/sent", h.MarkSent)
	mux.HandleFunc("GET /v1/messages/{id}/open", h.OpenMessage)

	mux.HandleFunc("GET /v1/reminders/{id}/click", h.ReminderClick)

	mux.HandleFunc("GET /v1/preferences", h.GetPreferences)
	mux.HandleFunc("PUT /v1/preferences", h.PutPreferences)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wa-scheduler"))
	})

	return mux
}
