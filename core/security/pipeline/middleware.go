package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/cutty/cutty/core/infra/logging"
)

// Middleware runs the pipeline ahead of next. Denied and errored requests are
// answered here and never reach next. Upload quota reserved for a forwarded
// request is refunded when next answers with a client or server error.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, out := p.Handle(r)
		if res.Decision == DecisionForward {
			if res.charged == nil {
				next.ServeHTTP(w, out)
				return
			}
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, out)
			if sw.status >= http.StatusBadRequest {
				if err := p.validator.Refund(r.Context(), *res.charged); err != nil {
					logging.Warn(component, "upload quota not refunded", "subject", res.charged.Subject, "error", err)
				}
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.Status)
		_ = json.NewEncoder(w).Encode(res.Body)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
