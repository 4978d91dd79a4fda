package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"
)

// bytesPerMB converts runtime byte counts to megabytes.
const bytesPerMB = 1024 * 1024

// DBStatsProvider exposes connection pool statistics. *database.DB satisfies it.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// SystemStatus is the response of GET /api/v1/system.
type SystemStatus struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeStatus   `json:"runtime"`
	WebSocket     WSStatus        `json:"websocket"`
	Session       SessionStatus   `json:"session"`
	Database      *DatabaseStatus `json:"database,omitempty"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSStatus contains WebSocket hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// SessionStatus summarises the session snapshot.
type SessionStatus struct {
	Identity      string `json:"identity"`
	Status        string `json:"status"`
	Subscriptions int    `json:"subscriptions"`
	OutboundLen   int    `json:"outbound_len"`
	InboundLen    int    `json:"inbound_len"`
}

// DatabaseStatus contains history database connection pool statistics.
type DatabaseStatus struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime, hub, session and database statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.session.Snapshot()
	status := SystemStatus{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSStatus{
			ConnectedClients: s.hub.ClientCount(),
		},
		Session: SessionStatus{
			Identity:      snap.Identity,
			Status:        string(snap.Status),
			Subscriptions: len(snap.Subscriptions),
			OutboundLen:   snap.OutboundLen,
			InboundLen:    snap.InboundLen,
		},
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		status.Database = &DatabaseStatus{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, status)
}
