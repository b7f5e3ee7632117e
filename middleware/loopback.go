// Package middleware, lokal observation API'sinin HTTP request
// pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur:
//
//	func(next http.Handler) http.Handler
//
// "next" zincirdeki bir sonraki handler'dır. Middleware kendi işini yapar,
// sonra next'i çağırır; hata varsa next'i çağırmaz — request burada durur.
package middleware

import (
	"net"
	"net/http"

	"github.com/primetalker/callkit/pkg"
)

// Loopback, loopback dışından gelen istekleri reddeder.
//
// Observation server varsayılan olarak 127.0.0.1'e bind olur; bu
// middleware UI_ADDR yanlışlıkla 0.0.0.0'a çevrilirse bile session
// kontrolünün makine dışına açılmamasını garanti eder.
func Loopback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			pkg.ErrorWithMessage(w, http.StatusForbidden, "local access only")
			return
		}

		next.ServeHTTP(w, r)
	})
}
