// Command phsviewer serves a small JSON API over the parquet trace files
// phsbench writes: aggregate solve-rate/expansion stats and a list of
// individual runs, capped by a limit parameter. It queries the parquet files directly through
// DuckDB rather than importing them into a database, refreshing its view
// periodically as new batches land, the way the teacher's game viewer
// serves stats over self-play parquet output.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// dbCache holds a DuckDB connection over a view of every trace parquet file
// under root, refreshed no more often than refreshRate.
type dbCache struct {
	root        string
	refreshRate time.Duration

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

func newDBCache(root string, refreshRate time.Duration) *dbCache {
	return &dbCache{root: root, refreshRate: refreshRate}
}

func (c *dbCache) get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	glob := filepath.Join(c.root, "**", "*.parquet")
	_, err = db.Exec(`CREATE OR REPLACE VIEW runs AS SELECT * FROM read_parquet(?, union_by_name=true)`, glob)
	if err != nil {
		_, err = db.Exec(`CREATE OR REPLACE VIEW runs AS
			SELECT * FROM (
				SELECT NULL::VARCHAR AS board_id, NULL::BOOLEAN AS solved,
				       NULL::INTEGER AS expanded, NULL::VARCHAR AS actions,
				       NULL::VARCHAR AS evaluator, NULL::DOUBLE AS elapsed_seconds
			) WHERE FALSE`)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = db
	c.lastRefresh = time.Now()
	return db, nil
}

type statsResponse struct {
	TotalRuns    int64   `json:"total_runs"`
	SolvedRuns   int64   `json:"solved_runs"`
	SolveRate    float64 `json:"solve_rate"`
	AvgExpanded  float64 `json:"avg_expanded"`
	AvgElapsedMs float64 `json:"avg_elapsed_ms"`
}

func (c *dbCache) handleStats(w http.ResponseWriter, r *http.Request) {
	db, err := c.get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var resp statsResponse
	row := db.QueryRowContext(r.Context(), `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN solved THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(expanded), 0),
			COALESCE(AVG(elapsed_seconds), 0) * 1000
		FROM runs`)
	if err := row.Scan(&resp.TotalRuns, &resp.SolvedRuns, &resp.AvgExpanded, &resp.AvgElapsedMs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if resp.TotalRuns > 0 {
		resp.SolveRate = float64(resp.SolvedRuns) / float64(resp.TotalRuns)
	}

	writeJSON(w, resp)
}

type runRow struct {
	BoardID  string  `json:"board_id"`
	Solved   bool    `json:"solved"`
	Expanded int32   `json:"expanded"`
	Actions  string  `json:"actions"`
	Elapsed  float64 `json:"elapsed_seconds"`
}

func (c *dbCache) handleRuns(w http.ResponseWriter, r *http.Request) {
	db, err := c.get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5000 {
			limit = n
		}
	}
	onlyUnsolved := r.URL.Query().Get("unsolved") == "1"

	query := `SELECT board_id, solved, expanded, actions, elapsed_seconds FROM runs`
	if onlyUnsolved {
		query += ` WHERE solved = FALSE`
	}
	query += ` ORDER BY expanded DESC LIMIT ?`

	rows, err := db.QueryContext(r.Context(), query, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var out []runRow
	for rows.Next() {
		var rr runRow
		if err := rows.Scan(&rr.BoardID, &rr.Solved, &rr.Expanded, &rr.Actions, &rr.Elapsed); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, rr)
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	traceDir := flag.String("trace-dir", "data/traces", "Directory of search trace parquet files, scanned recursively")
	addr := flag.String("addr", ":8090", "HTTP listen address")
	refresh := flag.Duration("refresh", 5*time.Second, "How often to re-scan trace-dir for new parquet files")
	flag.Parse()

	cache := newDBCache(*traceDir, *refresh)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", cache.handleStats)
	mux.HandleFunc("/api/runs", cache.handleRuns)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Printf("phsviewer listening on %s, serving traces from %s", *addr, *traceDir)
	log.Fatal(http.ListenAndServe(*addr, logRequests(mux)))
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
