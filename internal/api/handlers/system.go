package handlers

import (
	"errors"
	"net/http"

	"github.com/ramonehamilton/binder-companion/internal/api/response"
	"github.com/ramonehamilton/binder-companion/internal/editor"
	"github.com/ramonehamilton/binder-companion/internal/metrics"
	"github.com/ramonehamilton/binder-companion/internal/storage"
	"github.com/ramonehamilton/binder-companion/internal/version"
)

// SystemHandler reports process status, version and sync metrics, and
// manages cache backups.
type SystemHandler struct {
	manager *editor.Manager
	metrics *metrics.SyncMetrics
	backups *storage.BackupManager
	clients func() int
}

// NewSystemHandler creates a new SystemHandler. backups and clients may be
// nil; clients reports connected WebSocket clients.
func NewSystemHandler(manager *editor.Manager, m *metrics.SyncMetrics, backups *storage.BackupManager, clients func() int) *SystemHandler {
	return &SystemHandler{manager: manager, metrics: m, backups: backups, clients: clients}
}

// Status is the process status.
type Status struct {
	OpenBinders      []string `json:"openBinders"`
	WebSocketClients int      `json:"webSocketClients"`
	Version          string   `json:"version"`
}

// GetStatus returns the open sessions and connected clients.
func (h *SystemHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	status := Status{
		OpenBinders: h.manager.Sessions(),
		Version:     version.Version,
	}
	if status.OpenBinders == nil {
		status.OpenBinders = []string{}
	}
	if h.clients != nil {
		status.WebSocketClients = h.clients()
	}
	response.Success(w, status)
}

// GetVersion returns build information.
func (h *SystemHandler) GetVersion(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, version.Get())
}

// GetMetrics returns the sync and catalog counters.
func (h *SystemHandler) GetMetrics(w http.ResponseWriter, _ *http.Request) {
	if h.metrics == nil {
		response.Success(w, &metrics.SyncStats{})
		return
	}
	response.Success(w, h.metrics.GetStats())
}

// ResetMetrics zeroes the counters.
func (h *SystemHandler) ResetMetrics(w http.ResponseWriter, _ *http.Request) {
	if h.metrics != nil {
		h.metrics.Reset()
	}
	response.NoContent(w)
}

var errNoBackups = errors.New("backups are not configured")

// ListBackups returns the cache backups, newest first.
func (h *SystemHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		response.ServiceUnavailable(w, errNoBackups)
		return
	}
	backups, err := h.backups.List(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Success(w, backups)
}

// CreateBackup writes a backup of the cache now.
func (h *SystemHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		response.ServiceUnavailable(w, errNoBackups)
		return
	}
	info, err := h.backups.Backup(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}
	response.Created(w, info)
}
