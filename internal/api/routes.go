package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"eduai-sync-service/internal/queue"
	"eduai-sync-service/internal/store"
	"eduai-sync-service/internal/sync"
)

type Handler struct {
	manager   *sync.Manager
	authToken string
}

func NewHandler(manager *sync.Manager, authToken string) *Handler {
	return &Handler{
		manager:   manager,
		authToken: authToken,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/write", h.Write)
		r.Post("/submissions", h.SaveSubmission)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/history", h.GetSyncHistory)

		r.Get("/queue", h.GetQueue)
		r.Get("/queue/dead", h.GetDeadQueue)
		r.Post("/queue/{seq}/requeue", h.RequeueMutation)
		r.Delete("/queue", h.ClearQueue)

		r.Post("/connectivity", h.SignalConnectivity)

		r.Get("/cache/{collection}", h.GetCachedRecords)
		r.Delete("/cache", h.ClearCache)
		r.Delete("/cache/{collection}", h.ClearCollection)
		r.Post("/cache/refresh/courses", h.RefreshCourses)
		r.Post("/cache/refresh/assignments", h.RefreshAssignments)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Write is the offline-aware write path: local store first, then direct
// remote apply or queueing depending on connectivity.
func (h *Handler) Write(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Collection string          `json:"collection"`
		Operation  queue.Operation `json:"operation"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.manager.Engine().Write(r.Context(), body.Collection, body.Operation, body.Data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) SaveSubmission(w http.ResponseWriter, r *http.Request) {
	var data json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.manager.Engine().SaveSubmission(r.Context(), data); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.manager.Engine().Drain(r.Context())
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(status)
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	runs, err := h.manager.Store().ListSyncRuns(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*store.SyncRun{}
	}
	json.NewEncoder(w).Encode(runs)
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Queue().DrainInOrder(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(items)
}

func (h *Handler) GetDeadQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.manager.Queue().ListDead(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(items)
}

func (h *Handler) RequeueMutation(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		http.Error(w, "invalid seq", http.StatusBadRequest)
		return
	}
	if err := h.manager.Queue().Requeue(r.Context(), seq); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "requeued"})
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Queue().Clear(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

// SignalConnectivity feeds a pushed online/offline event from the hosting
// environment into the monitor.
func (h *Handler) SignalConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	h.manager.Monitor().Signal(body.Online)
	json.NewEncoder(w).Encode(map[string]bool{"online": body.Online})
}

// GetCachedRecords lists a collection, optionally filtered on one of its
// indexed fields (?field=course_id&value=...).
func (h *Handler) GetCachedRecords(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")

	var (
		records []store.CachedRecord
		err     error
	)
	if field != "" {
		records, err = h.manager.Store().GetAllByIndex(r.Context(), collection, field, value)
	} else {
		records, err = h.manager.Store().GetAll(r.Context(), collection)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if records == nil {
		records = []store.CachedRecord{}
	}
	json.NewEncoder(w).Encode(records)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Store().ClearAll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

func (h *Handler) ClearCollection(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if err := h.manager.Store().Clear(r.Context(), collection); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
}

func (h *Handler) RefreshCourses(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Refresher().RefreshCourses(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"cached": n})
}

func (h *Handler) RefreshAssignments(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("course_id")
	n, err := h.manager.Refresher().RefreshAssignments(r.Context(), courseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"cached": n})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware enforces the configured bearer token. With no token
// configured the API is open.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" && r.Header.Get("Authorization") != "Bearer "+h.authToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
