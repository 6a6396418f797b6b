package middleware

import (
	"context"
	"net/http"

	"techblog/internal/domain"
	"techblog/internal/service"
)

// VisitorCounter counts every request through the visitor service before
// handing it on. Counting is best effort and never changes the response.
func VisitorCounter(visitors service.VisitorService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := domain.VisitRequest{
				IPAddress: ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For")),
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
			}
			// A client hanging up must not abort the write half way
			visitors.RecordVisit(context.WithoutCancel(r.Context()), req)

			next.ServeHTTP(w, r)
		})
	}
}
