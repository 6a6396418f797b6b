package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"techblog/pkg/logger"
)

// NewSiteProxy forwards page requests to the site origin. The inbound
// X-Forwarded-For chain is kept and the connection address appended, so the
// origin sees the same client the visitor counter saw.
func NewSiteProxy(upstream *url.URL, logger *logger.Logger) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
			pr.SetXForwarded()
			pr.SetURL(upstream)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithError(err).WithField("path", r.URL.Path).Error("Site upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}
