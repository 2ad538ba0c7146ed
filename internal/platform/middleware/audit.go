package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/symptra/symptra/internal/platform/auth"
)

// AuditEntry records who changed the workflow and how it turned out.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	ActorID    string
	ActorRoles []string
	Action     string // submit, approve, reject, or the HTTP method otherwise
	TargetID   string
	Method     string
	Path       string
	IPAddress  string
	UserAgent  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every state-changing call under /api/. Reads are not audited.
// Each recorder also receives the entry; recorder failures are logged and
// never fail the request.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}

			ctx := c.Request().Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				ActorID:    auth.UserIDFromContext(ctx),
				ActorRoles: auth.RolesFromContext(ctx),
				Action:     auditAction(req.Method, req.URL.Path),
				TargetID:   c.Param("id"),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor", entry.ActorID).
				Strs("roles", entry.ActorRoles).
				Str("action", entry.Action).
				Str("target", entry.TargetID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("workflow_change")

			return err
		}
	}
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/") {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func auditAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/approve"):
		return "approve"
	case strings.HasSuffix(path, "/reject"):
		return "reject"
	case method == http.MethodPost && strings.HasSuffix(strings.TrimRight(path, "/"), "/requests"):
		return "submit"
	}
	return strings.ToLower(method)
}
