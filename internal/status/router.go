package status

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gluk-w/miaoagent/internal/database"
	"github.com/gluk-w/miaoagent/internal/fulltunnel"
	"github.com/gluk-w/miaoagent/internal/tunnelmgr"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// tunnelView is the JSON shape returned for one tunnel by /tunnels and
// /tunnels/{id}.
type tunnelView struct {
	ID     string                    `json:"id"`
	Config tunnelmodel.TunnelConfig  `json:"config"`
	Status tunnelmodel.RuntimeStatus `json:"status"`
}

// NewRouter builds the status HTTP surface. It holds no business logic and
// calls into mgr's and ft's read paths, plus one read of the most recent
// BackupRunRow from database.DB for /backups/last.
func NewRouter(mgr *tunnelmgr.Manager, ft *fulltunnel.Controller) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"tunnels": len(mgr.Snapshot()),
		})
	})

	r.Get("/tunnels", func(w http.ResponseWriter, req *http.Request) {
		list := mgr.List()
		views := make([]tunnelView, 0, len(list))
		for _, entry := range list {
			views = append(views, tunnelView{ID: entry.Config.ID, Config: entry.Config, Status: entry.Status})
		}
		writeJSON(w, http.StatusOK, views)
	})

	r.Get("/tunnels/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		status, ok := mgr.GetStatus(id)
		if !ok {
			writeError(w, http.StatusNotFound, "tunnel not found")
			return
		}
		cfg, _ := mgr.GetConfig(id)
		writeJSON(w, http.StatusOK, tunnelView{ID: id, Config: cfg, Status: status})
	})

	r.Get("/sets/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		setStatus, ok := ft.GetStatus(id)
		if !ok {
			writeError(w, http.StatusNotFound, "tunnel set not found")
			return
		}
		writeJSON(w, http.StatusOK, setStatus)
	})

	r.Get("/backups/last", func(w http.ResponseWriter, req *http.Request) {
		var run database.BackupRunRow
		if err := database.DB.Order("finished_at desc").First(&run).Error; err != nil {
			writeError(w, http.StatusNotFound, "no backup runs recorded")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}
