package middleware

import (
	"log"
	"net/http"
	"time"
)

// statusRecorder, WriteHeader'a verilen status code'u yakalar —
// http.ResponseWriter status'u geri okutmaz.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging, her isteği method, path, status ve süreyle loglar.
// WebSocket upgrade path'i hariç tutulur — bağlantı açık kaldığı sürece
// "istek" bitmez, süre anlamsız olur.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		log.Printf("[http] %s %s → %d (%s)", r.Method, r.URL.Path, recorder.status, time.Since(start).Round(time.Millisecond))
	})
}
