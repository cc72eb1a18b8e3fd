package auth

import (
	"net/http"

	"go.uber.org/zap"

	authlib "github.com/qiuhuiming/titan-track/internal/platform/auth"
)

// Middleware enforces bearer-token authentication on the sync routes.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config. Rejections are logged at debug
// level so a misconfigured client does not flood the logs.
func NewMiddleware(cfg Config, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	onReject := func(r *http.Request, err error) {
		logger.Debug("bearer token rejected",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, authlib.WithRejectHook(onReject))}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
