// Package status exposes the minimal read-only HTTP status surface
// (SPEC_FULL.md §6): GET /status, GET /tunnels, GET /tunnels/{id},
// GET /sets/{id} and GET /backups/last, built on go-chi/chi/v5. It holds no
// business logic: it calls into the tunnel manager's and full-tunnel
// controller's read paths, and /backups/last reads the most recent
// BackupRunRow from database.DB.
package status
