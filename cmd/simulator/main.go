package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

var (
	serverURL      = flag.String("server", "ws://localhost:9000", "CSMS WebSocket base URL")
	chargePointID  = flag.String("id", "CP001", "Charge point identifier")
	vendor         = flag.String("vendor", "ChargeNet", "Charge point vendor")
	model          = flag.String("model", "SimulatorV1", "Charge point model")
	serial         = flag.String("serial", "SIM001", "Serial number")
	firmware       = flag.String("firmware", "1.0.0", "Firmware version")
	idTag          = flag.String("idtag", "SIMTAG01", "Default idTag for local starts")
	connectorCount = flag.Int("connectors", 2, "Number of connectors")
	meterIntervalS = flag.Int("meter-interval", 30, "MeterValues interval in seconds")
	powerKW        = flag.Float64("power", 22.0, "Simulated charge power (kW)")
	interactive    = flag.Bool("interactive", false, "Enable interactive mode")
	verbose        = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config := &SimulatorConfig{
		ServerURL:       *serverURL,
		ChargePointID:   *chargePointID,
		Vendor:          *vendor,
		Model:           *model,
		SerialNumber:    *serial,
		FirmwareVersion: *firmware,
		IDTag:           *idTag,
		ConnectorCount:  *connectorCount,
		MeterIntervalS:  *meterIntervalS,
		ChargePowerKW:   *powerKW,
	}

	simulator := NewSimulator(config, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		os.Exit(0)
	}()

	if err := simulator.Connect(); err != nil {
		logger.Fatal("Failed to connect to server", zap.Error(err))
	}

	if *interactive {
		runInteractiveMode(simulator)
	} else {
		fmt.Printf("OCPP 1.6-J charge point simulator started\n")
		fmt.Printf("  ID: %s\n", *chargePointID)
		fmt.Printf("  Server: %s\n", *serverURL)
		fmt.Println("\nPress Ctrl+C to stop")

		select {}
	}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nOCPP 1.6-J Charge Point Simulator - Interactive Mode")
	fmt.Println("====================================================")
	fmt.Println("Commands:")
	fmt.Println("  start <connector>   - Start a transaction on connector")
	fmt.Println("  stop                - Stop the current transaction")
	fmt.Println("  status <connector> <state> - StatusNotification (Available/Charging/Faulted/...)")
	fmt.Println("  meter <wh>          - Send a meter value (Wh)")
	fmt.Println("  heartbeat           - Send a heartbeat")
	fmt.Println("  fault <connector>   - Raise a fault on connector")
	fmt.Println("  quit                - Exit simulator")
	fmt.Println("")

	sim.RunInteractive()
}
