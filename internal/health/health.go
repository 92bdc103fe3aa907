package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetterCounter reports the current dead-letter backlog.
type DeadLetterCounter interface {
	Len() int
}

type Status struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message,omitempty"`
	Database    bool   `json:"database,omitempty"`
	DeadLetters int    `json:"dead_letters"`
}

// HTTPHandler reports service health. A nil pool skips the database probe;
// dlq may be nil when the dispatch subsystem is not wired.
func HTTPHandler(pool *pgxpool.Pool, dlq DeadLetterCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok", Database: true}

		if dlq != nil {
			st.DeadLetters = dlq.Len()
		}

		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
