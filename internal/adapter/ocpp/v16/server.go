package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/observability/telemetry"
)

const OCPPSubprotocol = "ocpp1.6"

// OCPP 1.6-J message types
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// Call timeouts. Firmware and diagnostics transfers take longer than the
// usual command round trip.
const (
	DefaultCallTimeout = 30 * time.Second
	LongCallTimeout    = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{OCPPSubprotocol},
}

type callOutcome struct {
	payload json.RawMessage
	errCode string
	errDesc string
}

// clientConn is one connected charge point. pending maps CALL uniqueIds to
// waiters for their CALLRESULT/CALLERROR.
type clientConn struct {
	chargePointID string
	conn          *websocket.Conn
	writeMu       sync.Mutex
	pendingMu     sync.Mutex
	pending       map[string]chan callOutcome
}

func (c *clientConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// failPending wakes every waiter with a transport error. Called when the
// connection drops or is superseded.
func (c *clientConn) failPending(reason string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- callOutcome{errCode: "TransportError", errDesc: reason}
		delete(c.pending, id)
	}
}

// Server is the OCPP 1.6-J WebSocket gateway. Chargers connect on
// /<charge_point_id> with the ocpp1.6 sub-protocol; at most one connection
// per charge point is kept, a newer connection supersedes the old one.
type Server struct {
	handlers *Handlers
	clients  map[string]*clientConn
	mu       sync.RWMutex
	log      *zap.Logger
}

func NewServer(log *zap.Logger) *Server {
	return &Server{
		clients: make(map[string]*clientConn),
		log:     log,
	}
}

// Bind attaches the inbound message handlers. Done after construction so the
// session engine can hold the server as its command sender.
func (s *Server) Bind(handlers *Handlers) {
	s.handlers = handlers
}

// Start serves the gateway on its own listener.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleWebSocket)

	addr := fmt.Sprintf(":%d", port)
	s.log.Info("Starting OCPP 1.6 WebSocket gateway", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

// Stop closes all charge point connections.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, client := range s.clients {
		client.failPending("server shutting down")
		client.conn.Close()
		delete(s.clients, id)
	}
	s.log.Info("OCPP 1.6 gateway stopped")
}

func (s *Server) IsConnected(chargePointID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[chargePointID]
	return ok
}

func (s *Server) ConnectedChargePoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// HandleWebSocket upgrades a charge point connection. The charge point id is
// the URL path.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	chargePointID := strings.Trim(r.URL.Path, "/")
	if chargePointID == "" || strings.Contains(chargePointID, "/") {
		http.Error(w, "missing charge point ID", http.StatusBadRequest)
		return
	}

	if !requestsSubprotocol(r, OCPPSubprotocol) {
		http.Error(w, "unsupported websocket sub-protocol", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	if conn.Subprotocol() != OCPPSubprotocol {
		s.log.Warn("Sub-protocol negotiation failed",
			zap.String("charge_point_id", chargePointID),
			zap.String("negotiated", conn.Subprotocol()),
		)
		conn.Close()
		return
	}

	client := &clientConn{
		chargePointID: chargePointID,
		conn:          conn,
		pending:       make(map[string]chan callOutcome),
	}

	s.mu.Lock()
	if old, ok := s.clients[chargePointID]; ok {
		// New connection supersedes the old one. Anyone waiting on the
		// old socket gets a transport error.
		old.failPending("connection superseded")
		old.conn.Close()
	}
	s.clients[chargePointID] = client
	s.mu.Unlock()

	telemetry.OCPPConnectedChargePoints.Inc()
	s.log.Info("Charge point connected", zap.String("charge_point_id", chargePointID))

	defer func() {
		conn.Close()
		client.failPending("connection closed")
		s.mu.Lock()
		// Only drop the registration if it still points at this
		// connection; a superseding connection may have replaced it.
		if current, ok := s.clients[chargePointID]; ok && current == client {
			delete(s.clients, chargePointID)
		}
		s.mu.Unlock()
		telemetry.OCPPConnectedChargePoints.Dec()
		// A disconnect says nothing about the charger being offline;
		// online-ness is derived from heartbeat age on the read path.
		s.log.Info("Charge point disconnected", zap.String("charge_point_id", chargePointID))
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error("WebSocket read error",
					zap.String("charge_point_id", chargePointID),
					zap.Error(err))
			}
			break
		}

		response, err := s.processMessage(client, message)
		if err != nil {
			s.log.Error("Failed to process OCPP message",
				zap.String("charge_point_id", chargePointID),
				zap.Error(err),
			)
			continue
		}
		if response != nil {
			if err := client.write(response); err != nil {
				s.log.Error("Failed to send response", zap.Error(err))
				break
			}
		}
	}
}

func requestsSubprotocol(r *http.Request, want string) bool {
	for _, header := range r.Header["Sec-Websocket-Protocol"] {
		for _, proto := range strings.Split(header, ",") {
			if strings.TrimSpace(proto) == want {
				return true
			}
		}
	}
	return false
}

// processMessage parses and routes one OCPP 1.6-J frame.
// CALL:       [2, uniqueId, action, payload]
// CALLRESULT: [3, uniqueId, payload]
// CALLERROR:  [4, uniqueId, errorCode, errorDescription, errorDetails]
func (s *Server) processMessage(client *clientConn, raw []byte) ([]byte, error) {
	var msg []json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid OCPP message format: %w", err)
	}
	if len(msg) < 3 {
		return nil, fmt.Errorf("OCPP message too short")
	}

	var msgType int
	if err := json.Unmarshal(msg[0], &msgType); err != nil {
		return nil, fmt.Errorf("invalid message type: %w", err)
	}
	var uniqueID string
	if err := json.Unmarshal(msg[1], &uniqueID); err != nil {
		return nil, fmt.Errorf("invalid unique ID: %w", err)
	}

	switch msgType {
	case CallMessage:
		if len(msg) < 4 {
			return nil, fmt.Errorf("CALL message too short")
		}
		var action string
		if err := json.Unmarshal(msg[2], &action); err != nil {
			return nil, fmt.Errorf("invalid action: %w", err)
		}
		return s.handleCall(client, uniqueID, action, msg[3])

	case CallResultMessage:
		s.resolvePending(client, uniqueID, callOutcome{payload: msg[2]})
		return nil, nil

	case CallErrorMessage:
		outcome := callOutcome{errCode: "GenericError"}
		if len(msg) >= 3 {
			json.Unmarshal(msg[2], &outcome.errCode)
		}
		if len(msg) >= 4 {
			json.Unmarshal(msg[3], &outcome.errDesc)
		}
		s.resolvePending(client, uniqueID, outcome)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown message type %d", msgType)
	}
}

func (s *Server) handleCall(client *clientConn, uniqueID, action string, payload json.RawMessage) ([]byte, error) {
	telemetry.OCPPMessagesReceived.WithLabelValues(action).Inc()
	s.log.Debug("Received OCPP CALL",
		zap.String("charge_point_id", client.chargePointID),
		zap.String("action", action),
		zap.String("unique_id", uniqueID),
	)

	responsePayload, err := s.handlers.HandleMessage(client.chargePointID, action, payload)
	if err != nil {
		// Handler failures never leak to the wire: the charge point gets
		// a benign CALLRESULT and the failure is logged server-side.
		s.log.Error("Handler failed",
			zap.String("charge_point_id", client.chargePointID),
			zap.String("action", action),
			zap.Error(err),
		)
		telemetry.OCPPHandlerErrors.WithLabelValues(action).Inc()
		responsePayload = benignResponse(action)
	}

	result := []interface{}{CallResultMessage, uniqueID, responsePayload}
	return json.Marshal(result)
}

// benignResponse is a schema-valid CALLRESULT payload used when the real
// handler failed.
func benignResponse(action string) interface{} {
	switch action {
	case "BootNotification":
		return map[string]interface{}{
			"status":      "Accepted",
			"currentTime": time.Now().UTC().Format(time.RFC3339),
			"interval":    domain.DefaultHeartbeatIntervalS,
		}
	case "Heartbeat":
		return map[string]string{"currentTime": time.Now().UTC().Format(time.RFC3339)}
	case "StartTransaction":
		return map[string]interface{}{
			"transactionId": 0,
			"idTagInfo":     map[string]string{"status": "Accepted"},
		}
	case "StopTransaction", "Authorize":
		return map[string]interface{}{
			"idTagInfo": map[string]string{"status": "Accepted"},
		}
	default:
		return map[string]interface{}{}
	}
}

func (s *Server) resolvePending(client *clientConn, uniqueID string, outcome callOutcome) {
	client.pendingMu.Lock()
	ch, ok := client.pending[uniqueID]
	if ok {
		delete(client.pending, uniqueID)
	}
	client.pendingMu.Unlock()
	if !ok {
		s.log.Warn("CALLRESULT for unknown uniqueId",
			zap.String("charge_point_id", client.chargePointID),
			zap.String("unique_id", uniqueID),
		)
		return
	}
	ch <- outcome
}

// Call sends a CALL to a connected charge point and waits for its answer.
func (s *Server) Call(ctx context.Context, chargePointID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	s.mu.RLock()
	client, ok := s.clients[chargePointID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, chargePointID)
	}

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	uniqueID := uuid.New().String()
	frame, err := json.Marshal([]interface{}{CallMessage, uniqueID, action, payload})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", action, err)
	}

	ch := make(chan callOutcome, 1)
	client.pendingMu.Lock()
	client.pending[uniqueID] = ch
	client.pendingMu.Unlock()

	removePending := func() {
		client.pendingMu.Lock()
		delete(client.pending, uniqueID)
		client.pendingMu.Unlock()
	}

	if err := client.write(frame); err != nil {
		removePending()
		return nil, fmt.Errorf("%w: write failed: %v", domain.ErrNotConnected, err)
	}

	telemetry.OCPPMessagesSent.WithLabelValues(action).Inc()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		if outcome.errCode != "" {
			return nil, fmt.Errorf("%s rejected: %s (%s)", action, outcome.errCode, outcome.errDesc)
		}
		return outcome.payload, nil
	case <-timer.C:
		removePending()
		telemetry.OCPPCallTimeouts.WithLabelValues(action).Inc()
		return nil, fmt.Errorf("%w: %s after %s", domain.ErrTransportTimeout, action, timeout)
	case <-ctx.Done():
		removePending()
		return nil, ctx.Err()
	}
}
