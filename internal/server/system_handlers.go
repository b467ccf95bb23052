package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tdworks/basistracker/internal/database"
	syncengine "github.com/tdworks/basistracker/internal/sync"
)

// SystemHandlers handles monitoring and operational endpoints
type SystemHandlers struct {
	log      zerolog.Logger
	ledgerDB *database.DB
	cacheDB  *database.DB
	syncSvc  *syncengine.Service

	syncRunning atomic.Bool
}

// NewSystemHandlers creates a new system handlers instance. syncSvc may
// be nil when the process runs without broker credentials; the trigger
// endpoint then reports the missing configuration.
func NewSystemHandlers(log zerolog.Logger, ledgerDB, cacheDB *database.DB, syncSvc *syncengine.Service) *SystemHandlers {
	return &SystemHandlers{
		log:      log.With().Str("component", "system_handlers").Logger(),
		ledgerDB: ledgerDB,
		cacheDB:  cacheDB,
		syncSvc:  syncSvc,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	AccountCount     int     `json:"account_count"`
	TickerCount      int     `json:"ticker_count"`
	TransactionCount int     `json:"transaction_count"`
	LastSync         string  `json:"last_sync,omitempty"`
	CPUPercent       float64 `json:"cpu_percent"`
	RAMPercent       float64 `json:"ram_percent"`
}

// DBInfo represents statistics of a single database
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	PageSize  int64   `json:"page_size"`
	FreePages int64   `json:"free_pages"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleHealth responds once both databases answer a ping
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, db := range []*database.DB{h.ledgerDB, h.cacheDB} {
		if err := db.HealthCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Health check failed")
			http.Error(w, "Database unavailable: "+db.Name(), http.StatusServiceUnavailable)
			return
		}
	}

	h.writeJSON(w, map[string]string{"status": "ok"})
}

// HandleSystemStatus returns ledger counts and host resource usage
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	conn := h.ledgerDB.Conn()

	var accountCount, tickerCount, txCount int
	if err := conn.QueryRow("SELECT COUNT(*) FROM accounts").Scan(&accountCount); err != nil {
		h.log.Error().Err(err).Msg("Failed to count accounts")
	}
	if err := conn.QueryRow("SELECT COUNT(*) FROM tickers").Scan(&tickerCount); err != nil {
		h.log.Error().Err(err).Msg("Failed to count tickers")
	}
	if err := conn.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&txCount); err != nil {
		h.log.Error().Err(err).Msg("Failed to count transactions")
	}

	var lastSync string
	var highWater sql.NullInt64
	err := conn.QueryRow("SELECT MAX(high_water) FROM sync_cursors").Scan(&highWater)
	if err != nil && err != sql.ErrNoRows {
		h.log.Error().Err(err).Msg("Failed to query sync cursors")
	}
	if highWater.Valid {
		lastSync = time.Unix(highWater.Int64, 0).UTC().Format("2006-01-02 15:04")
	}

	cpuPct, ramPct := h.getSystemStats()

	response := SystemStatusResponse{
		AccountCount:     accountCount,
		TickerCount:      tickerCount,
		TransactionCount: txCount,
		LastSync:         lastSync,
		CPUPercent:       cpuPct,
		RAMPercent:       ramPct,
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns per-database file and page statistics
// GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range []*database.DB{h.ledgerDB, h.cacheDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalSizeMB += sizeMB

		databases = append(databases, DBInfo{
			Name:      db.Name(),
			Path:      db.Path(),
			SizeMB:    sizeMB,
			WALSizeMB: float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount: stats.PageCount,
			PageSize:  stats.PageSize,
			FreePages: stats.FreelistCount,
		})
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleTriggerSync starts a sync pass in the background and returns
// 202 immediately. A run can take far longer than the server's write
// deadline, so the outcome goes to the log and the alert sink rather
// than the response.
// POST /api/sync
func (h *SystemHandlers) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncSvc == nil {
		h.log.Warn().Msg("Sync triggered but no broker API is configured")
		http.Error(w, "Sync is not configured", http.StatusServiceUnavailable)
		return
	}

	if !h.syncRunning.CompareAndSwap(false, true) {
		http.Error(w, "A sync run is already in progress", http.StatusConflict)
		return
	}

	h.log.Info().Msg("Manual sync triggered")

	// Detached from the request context: an impatient client must not
	// abort a half-finished account batch.
	go func() {
		defer h.syncRunning.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		report, err := h.syncSvc.Run(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Manual sync failed")
			return
		}
		h.log.Info().
			Str("run_id", report.RunID).
			Int("new_transactions", report.NewTransactions).
			Int("accounts_failed", len(report.AccountsFailed)).
			Msg("Manual sync finished")
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Sample over 100ms to keep the status endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
