// fake-receiver is a local webhook endpoint for exercising the dispatcher:
// it verifies signatures, optionally fails the first N requests to trigger
// the retry path, and logs everything it receives.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/campaignforge/hookrelay/internal/signature"
)

const (
	idHeader  = "X-Webhook-ID"
	sigHeader = "X-Webhook-Signature"
	tsHeader  = "X-Webhook-Timestamp"
)

type receiver struct {
	secret     string
	failFirstN int64
	maxSkew    time.Duration
	reqCount   atomic.Int64
}

func main() {
	rcv := &receiver{maxSkew: 5 * time.Minute}
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rcv.failFirstN = int64(n)
		}
	}
	rcv.secret = os.Getenv("ENDPOINT_SECRET")
	if v := os.Getenv("SIGNING_LEEWAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rcv.maxSkew = time.Duration(n) * time.Second
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)

	addr := os.Getenv("HTTP_PORT")
	if addr == "" {
		addr = ":8081"
	}
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (rcv *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	n := rcv.reqCount.Add(1)
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rcv.secret != "" {
		if ok, msg := rcv.verify(b, r.Header.Get(tsHeader), r.Header.Get(sigHeader)); !ok {
			log.Printf("fake-receiver rejected %s: %s", r.Header.Get(idHeader), msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if n <= rcv.failFirstN {
		log.Printf("FAILING (%d/%d) webhook=%s body=%s", n, rcv.failFirstN, r.Header.Get(idHeader), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK webhook=%s body=%q", r.Header.Get(idHeader), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// verify checks the timestamp skew and the hex HMAC-SHA256 signature over
// the raw body.
func (rcv *receiver) verify(body []byte, ts, sig string) (bool, string) {
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	sent, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false, "invalid timestamp"
	}
	if skew := time.Since(sent); skew > rcv.maxSkew || skew < -rcv.maxSkew {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signature.Verify(body, sig, rcv.secret) {
		return false, "sig mismatch"
	}
	return true, ""
}

// truncate shortens a string to n bytes with an ellipsis.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
