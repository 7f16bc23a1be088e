package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_charging_sessions",
		Help: "Number of active charging sessions",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh",
	})

	WalletCreditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_wallet_credits_total",
		Help: "Wallet credit operations",
	}, []string{"method", "status"})

	PaymentCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_payment_callbacks_total",
		Help: "Payment gateway callbacks received",
	}, []string{"gateway", "outcome"})

	TicketRemindersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_ticket_reminders_total",
		Help: "SLA reminder emails sent",
	})

	// Gateway metrics
	OCPPConnectedChargePoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_ocpp_connected_charge_points",
		Help: "Charge points with a live WebSocket connection",
	})

	OCPPMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_received_total",
		Help: "OCPP CALLs received from charge points",
	}, []string{"action"})

	OCPPMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_sent_total",
		Help: "OCPP CALLs sent to charge points",
	}, []string{"action"})

	OCPPHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_handler_errors_total",
		Help: "Inbound OCPP handler failures answered with a benign CALLRESULT",
	}, []string{"action"})

	OCPPCallTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_call_timeouts_total",
		Help: "Outbound OCPP calls that timed out waiting for a CALLRESULT",
	}, []string{"action"})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csms_database_latency_seconds",
		Help:    "Database query latency",
		Buckets: prometheus.DefBuckets,
	})
)
