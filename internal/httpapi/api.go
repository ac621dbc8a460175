package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"shelterhub.org/internal/obs"
	"shelterhub.org/internal/shelter"
	"shelterhub.org/internal/stream"
)

// ReadyProbe reports whether the service can take traffic. With a nil DB the
// in-memory store is in use and the probe always passes.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the shelter service.
type API struct {
	mux        *http.ServeMux
	svc        *shelter.Service
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
	maxBody    int64
}

// New builds the route table. The stream may be nil to disable SSE.
func New(rp ReadyProbe, version string, svc *shelter.Service, st *stream.Stream) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		stream:     st,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
		maxBody:    1 << 20,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/users", a.handleUsers)

	a.mux.HandleFunc("/v1/groups", a.handleGroupsCollection)
	a.mux.HandleFunc("/v1/groups/", a.handleGroupResource)

	a.mux.HandleFunc("/v1/animals", a.handleAnimalsCollection)
	a.mux.HandleFunc("/v1/animals/bulk-update", a.handleBulkUpdate)
	a.mux.HandleFunc("/v1/animals/export", a.handleExportCSV)
	a.mux.HandleFunc("/v1/animals/import", a.handleImportCSV)
	a.mux.HandleFunc("/v1/animals/", a.handleAnimalResource)

	a.mux.Handle("/v1/stream", http.HandlerFunc(a.Stream))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the route table.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- service endpoints ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "shelterhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "shelterhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
