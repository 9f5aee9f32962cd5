// Package server is the HTTP shell around the service registry: it
// converts incoming requests into service envelopes, dispatches them,
// and writes the envelope responses back to the client.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahmadzakiakmal/timetrack/journal"
	"github.com/ahmadzakiakmal/timetrack/logging"
	service_registry "github.com/ahmadzakiakmal/timetrack/srvreg"
)

// JournalReader lists audit entries for the debug endpoint. The badger
// journal satisfies it; a nil reader disables the listing.
type JournalReader interface {
	ListByKind(kind string, limit int) ([]journal.Entry, error)
}

// WebServer handles HTTP requests
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          *slog.Logger
	startTime       time.Time
	serviceRegistry *service_registry.ServiceRegistry
	journalReader   JournalReader
	storageMode     string
	requestCounter  metric.Float64Counter
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, serviceRegistry *service_registry.ServiceRegistry, journalReader JournalReader, storageMode string) *WebServer {
	mux := http.NewServeMux()

	server := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: otelhttp.NewHandler(mux, "timetrack-http"),
		},
		logger:          logging.Logger(),
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		journalReader:   journalReader,
		storageMode:     storageMode,
	}

	counter, err := logging.InitializeFloatCounter(
		"timetrack.http.requests", "API requests served", "{request}")
	if err == nil {
		server.requestCounter = counter
	}

	// Register routes
	mux.HandleFunc("/", server.handleRoot)
	mux.HandleFunc("/debug", server.handleDebug)
	// Service endpoints
	mux.HandleFunc("/auth/", server.handleServiceAPI)
	mux.HandleFunc("/tasks", server.handleServiceAPI)
	mux.HandleFunc("/tasks/", server.handleServiceAPI)
	mux.HandleFunc("/categories", server.handleServiceAPI)
	mux.HandleFunc("/categories/", server.handleServiceAPI)
	mux.HandleFunc("/links/", server.handleServiceAPI)
	mux.HandleFunc("/reports/", server.handleServiceAPI)

	return server
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot shows service status
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html")

	w.Write([]byte("<h1>Timetrack Service</h1>"))
	w.Write([]byte("<p>Personal task and time tracking API</p>"))
	w.Write([]byte(fmt.Sprintf("<p>Uptime: %s</p>", time.Since(ws.startTime))))
}

// handleDebug provides debugging information, including recent audit
// journal entries
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugInfo := map[string]interface{}{
		"service":      "timetrack",
		"storage_mode": ws.storageMode,
		"uptime":       time.Since(ws.startTime).String(),
	}

	if ws.journalReader != nil {
		for _, kind := range []string{journal.KindTransition, journal.KindAnomaly, journal.KindClockSkew} {
			entries, err := ws.journalReader.ListByKind(kind, 50)
			if err != nil {
				debugInfo["journal_error"] = err.Error()
				break
			}
			debugInfo["journal_"+kind] = entries
		}
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(debugInfo); err != nil {
		JSONError(w, "Error encoding response: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleServiceAPI converts the HTTP request into a service envelope,
// dispatches it through the registry, writes the response back, and logs
// the serialized request/response exchange
func (ws *WebServer) handleServiceAPI(w http.ResponseWriter, r *http.Request) {
	ctx, span := logging.StartSpan(r.Context(), "service-api")
	defer span.End()
	start := time.Now()

	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Error("Failed to generate request ID", "err", err)
		return
	}

	request, err := service_registry.ConvertHttpRequestToServiceRequest(r.WithContext(ctx), requestID)
	if err != nil {
		JSONError(w, "Failed to convert request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to convert HTTP request", "err", err)
		return
	}

	response, err := request.GenerateResponse(ws.serviceRegistry)
	if err != nil {
		JSONError(w, "Failed to generate response: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("Failed to generate response", "err", err)
		return
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.StatusCode)
	if _, err := w.Write([]byte(response.Body)); err != nil {
		ws.logger.Error("Failed to write client response", "err", err)
	}

	if ws.requestCounter != nil {
		ws.requestCounter.Add(ctx, 1)
	}
	logging.UpdateSpanValue(ctx, "http.duration_ms",
		float64(time.Since(start))/float64(time.Millisecond))

	response.BodyInterface = response.ParseBody()
	exchange := &service_registry.Exchange{Request: *request, Response: *response}
	raw, err := exchange.SerializeToBytes()
	if err != nil {
		ws.logger.Error("Failed to serialize exchange", "err", err, "request_id", request.RequestID)
		return
	}
	ws.logger.Info("=== Req-Res Pair Result ===",
		"request_id", request.RequestID,
		"status", response.StatusCode,
		"exchange", string(raw),
	)
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	w.Write(jsonBytes)
}
