package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig holds the simulator configuration.
type SimulatorConfig struct {
	ServerURL       string
	ChargePointID   string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	IDTag           string
	ConnectorCount  int
	MeterIntervalS  int
	ChargePowerKW   float64
}

// ConnectorState tracks a single connector.
type ConnectorState struct {
	ID            int
	Status        string // Available, Preparing, Charging, Finishing, Faulted, Unavailable
	MeterWh       int
	TransactionID int
	IsCharging    bool
}

// Simulator emulates an OCPP 1.6-J charge point over WebSocket.
type Simulator struct {
	config     *SimulatorConfig
	conn       *websocket.Conn
	log        *zap.Logger
	connectors []ConnectorState

	heartbeatInterval int

	messageID   int
	pendingMsgs map[string]chan json.RawMessage
	mu          sync.Mutex
	writeMu     sync.Mutex

	stopChan  chan struct{}
	meterStop chan struct{}
	wg        sync.WaitGroup
}

func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := range connectors {
		connectors[i] = ConnectorState{ID: i + 1, Status: "Available"}
	}

	return &Simulator{
		config:            config,
		log:               log,
		connectors:        connectors,
		pendingMsgs:       make(map[string]chan json.RawMessage),
		stopChan:          make(chan struct{}),
		heartbeatInterval: 300,
	}
}

// Connect dials the CSMS, performs the boot sequence and starts the
// heartbeat loop.
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.config.ServerURL, "/"), s.config.ChargePointID)

	dialer := websocket.Dialer{
		Subprotocols:     []string{"ocpp1.6"},
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	s.conn = conn

	s.log.Info("Connected to CSMS",
		zap.String("url", url),
		zap.String("chargePointID", s.config.ChargePointID),
	)

	s.wg.Add(1)
	go s.readMessages()

	resp, err := s.sendBootNotification()
	if err != nil {
		s.log.Error("BootNotification failed", zap.Error(err))
	} else {
		s.log.Info("BootNotification response", zap.Any("response", resp))
		if interval, ok := resp["interval"].(float64); ok && interval > 0 {
			s.heartbeatInterval = int(interval)
		}
	}

	for _, conn := range s.connectors {
		s.sendStatusNotification(conn.ID, conn.Status, "NoError")
	}

	s.wg.Add(1)
	go s.heartbeatLoop()

	return nil
}

// Stop shuts the simulator down.
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

func (s *Simulator) readMessages() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopChan:
				default:
					s.log.Error("Read error", zap.Error(err))
				}
				return
			}
			s.handleMessage(message)
		}
	}
}

func (s *Simulator) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 3 {
		s.log.Error("Invalid frame", zap.ByteString("data", data))
		return
	}

	var msgType int
	json.Unmarshal(raw[0], &msgType)
	var msgID string
	json.Unmarshal(raw[1], &msgID)

	switch msgType {
	case 2: // CALL from the CSMS
		var action string
		json.Unmarshal(raw[2], &action)
		var payload json.RawMessage
		if len(raw) > 3 {
			payload = raw[3]
		}
		s.handleServerRequest(msgID, action, payload)

	case 3: // CALLRESULT for one of our requests
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			ch <- raw[2]
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()

	case 4: // CALLERROR
		s.mu.Lock()
		if ch, ok := s.pendingMsgs[msgID]; ok {
			close(ch)
			delete(s.pendingMsgs, msgID)
		}
		s.mu.Unlock()
	}
}

func (s *Simulator) handleServerRequest(msgID, action string, payload json.RawMessage) {
	s.log.Info("Received CSMS request", zap.String("action", action))

	switch action {
	case "RemoteStartTransaction":
		var req struct {
			IDTag       string `json:"idTag"`
			ConnectorID *int   `json:"connectorId"`
		}
		json.Unmarshal(payload, &req)
		connectorID := 1
		if req.ConnectorID != nil {
			connectorID = *req.ConnectorID
		}
		if s.connectorAvailable(connectorID) {
			s.sendCallResult(msgID, map[string]string{"status": "Accepted"})
			go s.StartCharging(connectorID, req.IDTag)
		} else {
			s.sendCallResult(msgID, map[string]string{"status": "Rejected"})
		}

	case "RemoteStopTransaction":
		var req struct {
			TransactionID int `json:"transactionId"`
		}
		json.Unmarshal(payload, &req)
		if s.findTransaction(req.TransactionID) != nil {
			s.sendCallResult(msgID, map[string]string{"status": "Accepted"})
			go s.StopCharging("Remote")
		} else {
			s.sendCallResult(msgID, map[string]string{"status": "Rejected"})
		}

	case "Reset":
		s.sendCallResult(msgID, map[string]string{"status": "Accepted"})
		go s.simulateReset()

	case "ChangeAvailability":
		s.sendCallResult(msgID, map[string]string{"status": "Accepted"})

	case "GetConfiguration":
		s.sendCallResult(msgID, map[string]interface{}{
			"configurationKey": []map[string]interface{}{
				{"key": "HeartbeatInterval", "readonly": false, "value": strconv.Itoa(s.heartbeatInterval)},
				{"key": "MeterValueSampleInterval", "readonly": false, "value": strconv.Itoa(s.config.MeterIntervalS)},
				{"key": "NumberOfConnectors", "readonly": true, "value": strconv.Itoa(s.config.ConnectorCount)},
			},
			"unknownKey": []string{},
		})

	case "ChangeConfiguration":
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		json.Unmarshal(payload, &req)
		status := "NotSupported"
		switch req.Key {
		case "HeartbeatInterval":
			if v, err := strconv.Atoi(req.Value); err == nil && v > 0 {
				s.heartbeatInterval = v
				status = "Accepted"
			} else {
				status = "Rejected"
			}
		case "MeterValueSampleInterval":
			if v, err := strconv.Atoi(req.Value); err == nil && v > 0 {
				s.config.MeterIntervalS = v
				status = "Accepted"
			} else {
				status = "Rejected"
			}
		}
		s.sendCallResult(msgID, map[string]string{"status": status})

	case "UnlockConnector":
		s.sendCallResult(msgID, map[string]string{"status": "Unlocked"})

	case "ClearCache":
		s.sendCallResult(msgID, map[string]string{"status": "Accepted"})

	case "GetLocalListVersion":
		s.sendCallResult(msgID, map[string]int{"listVersion": 0})

	case "DataTransfer":
		s.sendCallResult(msgID, map[string]string{"status": "Accepted"})

	case "TriggerMessage":
		var req struct {
			RequestedMessage string `json:"requestedMessage"`
			ConnectorID      *int   `json:"connectorId"`
		}
		json.Unmarshal(payload, &req)
		s.sendCallResult(msgID, map[string]string{"status": "Accepted"})
		go s.handleTrigger(req.RequestedMessage, req.ConnectorID)

	default:
		s.sendCallError(msgID, "NotImplemented", fmt.Sprintf("action %s not supported", action))
	}
}

func (s *Simulator) handleTrigger(requested string, connectorID *int) {
	switch requested {
	case "Heartbeat":
		s.sendHeartbeat()
	case "BootNotification":
		s.sendBootNotification()
	case "StatusNotification":
		for _, conn := range s.connectors {
			if connectorID != nil && conn.ID != *connectorID {
				continue
			}
			s.sendStatusNotification(conn.ID, conn.Status, "NoError")
		}
	case "MeterValues":
		for _, conn := range s.connectors {
			if conn.IsCharging {
				s.sendMeterValues(conn.ID, conn.TransactionID, conn.MeterWh)
			}
		}
	}
}

// StartCharging begins a local transaction on the given connector.
func (s *Simulator) StartCharging(connectorID int, idTag string) {
	conn := s.connector(connectorID)
	if conn == nil || conn.IsCharging {
		return
	}
	if idTag == "" {
		idTag = s.config.IDTag
	}

	s.sendStatusNotification(connectorID, "Preparing", "NoError")

	resp, err := s.call("StartTransaction", map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       idTag,
		"meterStart":  conn.MeterWh,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StartTransaction failed", zap.Error(err))
		s.sendStatusNotification(connectorID, "Available", "NoError")
		return
	}

	txnID := 0
	if v, ok := resp["transactionId"].(float64); ok {
		txnID = int(v)
	}

	s.mu.Lock()
	conn.TransactionID = txnID
	conn.IsCharging = true
	conn.Status = "Charging"
	s.meterStop = make(chan struct{})
	s.mu.Unlock()

	s.sendStatusNotification(connectorID, "Charging", "NoError")
	s.log.Info("Transaction started",
		zap.Int("connectorId", connectorID),
		zap.Int("transactionId", txnID),
	)

	s.wg.Add(1)
	go s.meterLoop(connectorID)
}

// StopCharging ends the active transaction, if any.
func (s *Simulator) StopCharging(reason string) {
	s.mu.Lock()
	var conn *ConnectorState
	for i := range s.connectors {
		if s.connectors[i].IsCharging {
			conn = &s.connectors[i]
			break
		}
	}
	if conn == nil {
		s.mu.Unlock()
		return
	}
	txnID := conn.TransactionID
	meterStop := conn.MeterWh
	conn.IsCharging = false
	conn.TransactionID = 0
	conn.Status = "Finishing"
	if s.meterStop != nil {
		close(s.meterStop)
		s.meterStop = nil
	}
	connectorID := conn.ID
	s.mu.Unlock()

	s.sendStatusNotification(connectorID, "Finishing", "NoError")

	_, err := s.call("StopTransaction", map[string]interface{}{
		"transactionId": txnID,
		"meterStop":     meterStop,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"reason":        reason,
	})
	if err != nil {
		s.log.Error("StopTransaction failed", zap.Error(err))
	}

	s.mu.Lock()
	s.connector(connectorID).Status = "Available"
	s.mu.Unlock()
	s.sendStatusNotification(connectorID, "Available", "NoError")
	s.log.Info("Transaction stopped", zap.Int("transactionId", txnID))
}

func (s *Simulator) meterLoop(connectorID int) {
	defer s.wg.Done()

	s.mu.Lock()
	stop := s.meterStop
	interval := time.Duration(s.config.MeterIntervalS) * time.Second
	s.mu.Unlock()
	if stop == nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.connector(connectorID)
			if conn == nil || !conn.IsCharging {
				s.mu.Unlock()
				return
			}
			// Energy accrued this tick at the configured power.
			deltaWh := int(s.config.ChargePowerKW * 1000 * interval.Hours())
			conn.MeterWh += deltaWh
			meterWh := conn.MeterWh
			txnID := conn.TransactionID
			s.mu.Unlock()

			s.sendMeterValues(connectorID, txnID, meterWh)
		}
	}
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		interval := time.Duration(s.heartbeatInterval) * time.Second
		s.mu.Unlock()

		select {
		case <-s.stopChan:
			return
		case <-time.After(interval):
			s.sendHeartbeat()
		}
	}
}

func (s *Simulator) simulateReset() {
	s.StopCharging("Reboot")
	time.Sleep(2 * time.Second)

	if resp, err := s.sendBootNotification(); err == nil {
		if interval, ok := resp["interval"].(float64); ok && interval > 0 {
			s.mu.Lock()
			s.heartbeatInterval = int(interval)
			s.mu.Unlock()
		}
	}
	for _, conn := range s.connectors {
		s.sendStatusNotification(conn.ID, "Available", "NoError")
	}
}

func (s *Simulator) sendBootNotification() (map[string]interface{}, error) {
	return s.call("BootNotification", map[string]interface{}{
		"chargePointVendor":       s.config.Vendor,
		"chargePointModel":        s.config.Model,
		"chargePointSerialNumber": s.config.SerialNumber,
		"firmwareVersion":         s.config.FirmwareVersion,
	})
}

func (s *Simulator) sendHeartbeat() {
	if _, err := s.call("Heartbeat", map[string]interface{}{}); err != nil {
		s.log.Error("Heartbeat failed", zap.Error(err))
	}
}

func (s *Simulator) sendStatusNotification(connectorID int, status, errorCode string) {
	_, err := s.call("StatusNotification", map[string]interface{}{
		"connectorId": connectorID,
		"status":      status,
		"errorCode":   errorCode,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StatusNotification failed", zap.Error(err))
	}
}

func (s *Simulator) sendMeterValues(connectorID, transactionID, meterWh int) {
	_, err := s.call("MeterValues", map[string]interface{}{
		"connectorId":   connectorID,
		"transactionId": transactionID,
		"meterValue": []map[string]interface{}{
			{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"sampledValue": []map[string]string{
					{
						"value":     strconv.Itoa(meterWh),
						"measurand": "Energy.Active.Import.Register",
						"unit":      "Wh",
					},
					{
						"value":     fmt.Sprintf("%.1f", s.config.ChargePowerKW),
						"measurand": "Power.Active.Import",
						"unit":      "kW",
					},
				},
			},
		},
	})
	if err != nil {
		s.log.Error("MeterValues failed", zap.Error(err))
	}
}

// call sends a CALL frame and waits for the CALLRESULT.
func (s *Simulator) call(action string, payload interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	s.messageID++
	msgID := strconv.Itoa(s.messageID)
	ch := make(chan json.RawMessage, 1)
	s.pendingMsgs[msgID] = ch
	s.mu.Unlock()

	frame := []interface{}{2, msgID, action, payload}
	if err := s.writeFrame(frame); err != nil {
		s.mu.Lock()
		delete(s.pendingMsgs, msgID)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case raw, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s rejected with CALLERROR", action)
		}
		var result map[string]interface{}
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", action, err)
		}
		return result, nil
	case <-time.After(30 * time.Second):
		s.mu.Lock()
		delete(s.pendingMsgs, msgID)
		s.mu.Unlock()
		return nil, fmt.Errorf("%s timed out", action)
	case <-s.stopChan:
		return nil, fmt.Errorf("simulator stopped")
	}
}

func (s *Simulator) sendCallResult(msgID string, payload interface{}) {
	if err := s.writeFrame([]interface{}{3, msgID, payload}); err != nil {
		s.log.Error("Write CALLRESULT failed", zap.Error(err))
	}
}

func (s *Simulator) sendCallError(msgID, code, description string) {
	if err := s.writeFrame([]interface{}{4, msgID, code, description, map[string]string{}}); err != nil {
		s.log.Error("Write CALLERROR failed", zap.Error(err))
	}
}

func (s *Simulator) writeFrame(frame []interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

func (s *Simulator) connector(id int) *ConnectorState {
	for i := range s.connectors {
		if s.connectors[i].ID == id {
			return &s.connectors[i]
		}
	}
	return nil
}

func (s *Simulator) connectorAvailable(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.connector(id)
	return conn != nil && !conn.IsCharging && conn.Status != "Faulted" && conn.Status != "Unavailable"
}

func (s *Simulator) findTransaction(txnID int) *ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.connectors {
		if s.connectors[i].IsCharging && s.connectors[i].TransactionID == txnID {
			return &s.connectors[i]
		}
	}
	return nil
}

// RunInteractive reads commands from stdin until quit.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "start":
			connectorID := 1
			if len(fields) > 1 {
				connectorID, _ = strconv.Atoi(fields[1])
			}
			s.StartCharging(connectorID, s.config.IDTag)
		case "stop":
			s.StopCharging("Local")
		case "status":
			if len(fields) < 3 {
				fmt.Println("usage: status <connector> <state>")
				continue
			}
			connectorID, _ := strconv.Atoi(fields[1])
			s.sendStatusNotification(connectorID, fields[2], "NoError")
		case "meter":
			if len(fields) < 2 {
				fmt.Println("usage: meter <wh>")
				continue
			}
			wh, _ := strconv.Atoi(fields[1])
			s.mu.Lock()
			conn := s.connector(1)
			conn.MeterWh = wh
			txnID := conn.TransactionID
			s.mu.Unlock()
			s.sendMeterValues(1, txnID, wh)
		case "heartbeat":
			s.sendHeartbeat()
		case "fault":
			connectorID := 1
			if len(fields) > 1 {
				connectorID, _ = strconv.Atoi(fields[1])
			}
			s.mu.Lock()
			if conn := s.connector(connectorID); conn != nil {
				conn.Status = "Faulted"
			}
			s.mu.Unlock()
			s.sendStatusNotification(connectorID, "Faulted", "OtherError")
		case "quit", "exit":
			s.Stop()
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
