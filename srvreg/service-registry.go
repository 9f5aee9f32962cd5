// Package srvreg routes service requests to their handlers. Requests
// and responses travel as serializable envelopes so the server can log
// each one as a request/response pair.
package srvreg

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ahmadzakiakmal/timetrack/engine"
	"github.com/ahmadzakiakmal/timetrack/logging"
	"github.com/ahmadzakiakmal/timetrack/report"
)

// HeaderUserID carries the authenticated owner's ID on every request
// past the auth endpoints.
const HeaderUserID = "X-User-Id"

// Request represents the client's original HTTP request
type Request struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers"`
	Query      map[string]string `json:"query,omitempty"`
	Body       string            `json:"body"`
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"` // Unique ID for the request
	Timestamp  time.Time         `json:"timestamp"`

	// Params holds the values of :name segments once a route matches.
	Params map[string]string `json:"-"`

	ctx context.Context
}

// GenerateRequestID generates a deterministic ID for the request
func (r *Request) GenerateRequestID() {
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s-%s-%s-%s", r.Path, r.Method, r.Body, r.Timestamp)))
	r.RequestID = hex.EncodeToString(hasher.Sum(nil)[:16])
}

// Context returns the context the request arrived with.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// OwnerID returns the authenticated user's ID, or "" when the request
// carries none.
func (r *Request) OwnerID() string {
	return r.Headers[HeaderUserID]
}

// Response represents the computed response from the service
type Response struct {
	StatusCode    int               `json:"status_code"`
	Headers       map[string]string `json:"headers"`
	Body          string            `json:"body"`
	Error         string            `json:"error,omitempty"`
	BodyInterface interface{}       `json:"body_interface"`
}

// ParseBody attempts to parse the Response's Body field as JSON
// and returns the structured data or nil if parsing fails.
func (r *Response) ParseBody() interface{} {
	if r.Body == "" {
		return nil
	}

	var bodyMap map[string]interface{}
	if err := json.Unmarshal([]byte(r.Body), &bodyMap); err == nil {
		return bodyMap
	}

	var bodyArray []interface{}
	if err := json.Unmarshal([]byte(r.Body), &bodyArray); err == nil {
		return bodyArray
	}

	return nil
}

// Exchange pairs a request with the response it produced.
type Exchange struct {
	Request  Request  `json:"request"`
	Response Response `json:"response"`
}

// SerializeToBytes converts the exchange to a byte array for logging
func (e *Exchange) SerializeToBytes() ([]byte, error) {
	return json.Marshal(e)
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool // Whether a route is exact or pattern-based
	mu          sync.RWMutex
	engine      *engine.Engine
	aggregator  *report.Aggregator
	logger      *slog.Logger
}

// ConvertHttpRequestToServiceRequest converts an http.Request to Request
func ConvertHttpRequestToServiceRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(string(bodyBytes))
		body = compactJSON(raw)
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Query:      query,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
		ctx:        r.Context(),
	}, nil
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(eng *engine.Engine, aggregator *report.Aggregator) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		engine:      eng,
		aggregator:  aggregator,
		logger:      logging.Logger(),
	}
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the appropriate handler for a given path. It
// returns the handler, the values of any :name segments in the matched
// pattern, and whether a handler was found.
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, map[string]string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	// Try exact match first
	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, nil, true
		}
	}

	// Try pattern matching
	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}

		// Skip exact routes in pattern matching
		if sr.exactRoutes[routeKey] {
			continue
		}

		if params, ok := matchPath(routeKey.Path, path); ok {
			return handler, params, true
		}
	}

	return nil, nil, false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/tasks/:id" matching "/tasks/123",
// returning the captured segments by name.
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			params[patternParts[i][1:]] = pathParts[i]
			continue
		}

		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}

	return params, true
}

// RegisterDefaultServices sets up the task tracking service routes
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Auth
	sr.RegisterHandler("POST", "/auth/register", true, sr.RegisterUserHandler)
	sr.RegisterHandler("POST", "/auth/login", true, sr.LoginHandler)
	sr.RegisterHandler("GET", "/auth/profile", true, sr.ProfileHandler)

	// Tasks
	sr.RegisterHandler("GET", "/tasks", true, sr.ListTasksHandler)
	sr.RegisterHandler("POST", "/tasks", true, sr.CreateTaskHandler)
	sr.RegisterHandler("GET", "/tasks/active", true, sr.ActiveTaskHandler)
	sr.RegisterHandler("POST", "/tasks/pause-all", true, sr.PauseAllHandler)
	sr.RegisterHandler("GET", "/tasks/:id", false, sr.GetTaskHandler)
	sr.RegisterHandler("PUT", "/tasks/:id", false, sr.UpdateTaskHandler)
	sr.RegisterHandler("DELETE", "/tasks/:id", false, sr.DeleteTaskHandler)

	// Task lifecycle
	sr.RegisterHandler("POST", "/tasks/:id/start", false, sr.StartTaskHandler)
	sr.RegisterHandler("POST", "/tasks/:id/pause", false, sr.PauseTaskHandler)
	sr.RegisterHandler("POST", "/tasks/:id/finish", false, sr.FinishTaskHandler)
	sr.RegisterHandler("GET", "/tasks/:id/sessions", false, sr.TaskSessionsHandler)

	// Links
	sr.RegisterHandler("POST", "/tasks/:id/links", false, sr.CreateLinkHandler)
	sr.RegisterHandler("GET", "/tasks/:id/links", false, sr.ListLinksHandler)
	sr.RegisterHandler("DELETE", "/links/:id", false, sr.DeleteLinkHandler)

	// Categories
	sr.RegisterHandler("GET", "/categories", true, sr.ListCategoriesHandler)
	sr.RegisterHandler("POST", "/categories", true, sr.CreateCategoryHandler)
	sr.RegisterHandler("PUT", "/categories/:id", false, sr.UpdateCategoryHandler)
	sr.RegisterHandler("DELETE", "/categories/:id", false, sr.DeleteCategoryHandler)

	// Reports
	sr.RegisterHandler("GET", "/reports/daily", true, sr.DailyReportHandler)
	sr.RegisterHandler("GET", "/reports/weekly", true, sr.WeeklyReportHandler)
	sr.RegisterHandler("GET", "/reports/stats", true, sr.StatsHandler)
	sr.RegisterHandler("GET", "/reports/export", true, sr.ExportHandler)
}

// GenerateResponse executes the request and generates a response
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, params, found := services.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       fmt.Sprintf("Service not found for %s %s", req.Method, req.Path),
		}, nil
	}
	req.Params = params

	return handler(req)
}

func compactJSON(body string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		// Not JSON, return trimmed original
		return strings.TrimSpace(body)
	}
	return buf.String()
}
