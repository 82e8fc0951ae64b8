package server

import (
	"net/http"
	"time"
)

// Counter names recorded for every request served.
const (
	requestsCounter    = "http.requests"
	requestTimeCounter = "http.request_time"
	lastRequestCounter = "http.last_request"
	lastStatusCounter  = "http.last_status"
)

// requestRecorder is the part of the counter API used to instrument requests.
type requestRecorder interface {
	Increment(name string)
	Stats(name string, v float64)
	TimestampNow(name string)
	Last(name string, v float64)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records request count, latency in milliseconds, time and status
// once next has returned. Requests for the skipped paths are served but not
// recorded, so pull routes never change the counters they render.
func instrument(next http.Handler, rec requestRecorder, skip ...string) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipped[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		rec.Increment(requestsCounter)
		rec.Stats(requestTimeCounter, float64(time.Since(start).Microseconds())/1000)
		rec.TimestampNow(lastRequestCounter)
		rec.Last(lastStatusCounter, float64(sw.status))
	})
}
