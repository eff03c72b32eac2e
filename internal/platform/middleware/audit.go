package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// DashboardHeader identifies which dashboard issued the request
// ("hospital" or "ambulance"). It is informational only.
const DashboardHeader = "X-ERS-Dashboard"

// AuditEntry records one access to case data.
type AuditEntry struct {
	Dashboard  string
	Resource   string // cases, metrics
	CaseRef    string // case id or masked access code
	Action     string // read, create, update
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder receives every audit entry. The telemetry provider counts
// them.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// Audit logs every request under /api/v1/ as a case_access event and hands
// the entry to the optional recorders. Access codes are masked before they
// are logged.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			resource, ref := splitCasePath(path)
			entry := AuditEntry{
				Dashboard:  req.Header.Get(DashboardHeader),
				Resource:   resource,
				CaseRef:    ref,
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       path,
				Method:     req.Method,
				Timestamp:  time.Now().UTC(),
				StatusCode: status,
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "case_access").
				Str("request_id", entry.RequestID).
				Str("dashboard", entry.Dashboard).
				Str("resource", entry.Resource).
				Str("case_ref", entry.CaseRef).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("case_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitCasePath extracts the resource and case reference from paths like
//
//	/api/v1/cases                -> cases, ""
//	/api/v1/cases/<id>/status    -> cases, <id>
//	/api/v1/cases/by-code/ABC123 -> cases, AB****
//	/api/v1/metrics              -> metrics, ""
func splitCasePath(path string) (resource, ref string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	resource = segments[0]
	if len(segments) < 2 {
		return resource, ""
	}
	switch segments[1] {
	case "simulate":
		return resource, ""
	case "by-code":
		if len(segments) > 2 {
			return resource, maskCode(segments[2])
		}
		return resource, ""
	}
	return resource, segments[1]
}

// RedactPath masks the access code in /by-code/ paths so request logs and
// traces carry the same reference as the audit line. Route patterns such as
// /by-code/:code are returned unchanged.
func RedactPath(path string) string {
	const marker = "/by-code/"
	i := strings.Index(path, marker)
	if i < 0 {
		return path
	}
	start := i + len(marker)
	end := strings.IndexByte(path[start:], '/')
	if end < 0 {
		end = len(path)
	} else {
		end += start
	}
	code := path[start:end]
	if code == "" || strings.HasPrefix(code, ":") {
		return path
	}
	return path[:start] + maskCode(code) + path[end:]
}

func maskCode(code string) string {
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return strings.ToUpper(code[:2]) + strings.Repeat("*", len(code)-2)
}
