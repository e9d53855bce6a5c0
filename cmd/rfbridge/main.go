// Gray Logic RF Bridge
//
// This is the main entry point of the RF bridge service. It connects
// serial RF transceivers (CUL/culfw sticks and OneWire bus adapters) to the
// Gray Logic MQTT bus:
//   - FHT80b, FHT80 TF, EvoHome, EM1000 and HMS100 devices over a CUL
//   - 1-wire temperature and humidity sensors over a serial bus adapter
//
// Usage:
//
//	rfbridge                 run the service (config from GRAYLOGIC_CONFIG)
//	rfbridge token -subject installer -role operator
//	                         print an API bearer token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-rfbridge/migrations"

	"github.com/nerrad567/gray-logic-rfbridge/internal/api"
	"github.com/nerrad567/gray-logic-rfbridge/internal/auth"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rfbridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic RF bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Discovery candidate store
	candidates := discovery.NewStore(db.DB)
	candidates.SetLogger(log.Component("discovery"))
	if startErr := candidates.Start(ctx); startErr != nil {
		return fmt.Errorf("starting discovery store: %w", startErr)
	}
	defer candidates.Stop()

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	hub := api.NewHub(log.Component("websocket"))
	go hub.Run(ctx)

	// Start RF bridges
	deps := bridgeDeps{
		mqtt:       &mqttBridgeAdapter{client: mqttClient},
		candidates: candidates,
		hub:        hub,
		log:        log,
	}
	if influxClient != nil {
		deps.series = influxClient
	}

	var bridges []api.Bridge
	for _, entry := range enabledBridges(cfg) {
		bridge, startErr := startBridge(ctx, entry, deps)
		if startErr != nil {
			return fmt.Errorf("starting %s bridge: %w", entry.protocol, startErr)
		}
		defer func() {
			log.Info("stopping RF bridge", "bridge_id", bridge.ID())
			bridge.Stop()
		}()
		bridges = append(bridges, bridge)
	}

	// Start HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log.Component("api"),
		Bridges:    bridges,
		Candidates: candidates,
		Hub:        hub,
		Broker:     mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal", "bridges", len(bridges))

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// Bridges are not checked: a transceiver that is unplugged at boot
	// leaves its bridge Closed until reinitialized, without stopping the
	// service.
	return nil
}

// bridgeEntry names one enabled bridge and its config file.
type bridgeEntry struct {
	protocol   string
	configFile string
}

// enabledBridges lists the bridges switched on in the service config.
func enabledBridges(cfg *config.Config) []bridgeEntry {
	var entries []bridgeEntry
	if cfg.Protocols.CUL.Enabled {
		entries = append(entries, bridgeEntry{rf.ProtocolCUL, cfg.Protocols.CUL.ConfigFile})
	}
	if cfg.Protocols.OneWire.Enabled {
		entries = append(entries, bridgeEntry{rf.ProtocolOneWire, cfg.Protocols.OneWire.ConfigFile})
	}
	return entries
}

// bridgeDeps are the shared services handed to every bridge.
type bridgeDeps struct {
	mqtt       rf.MQTTClient
	candidates rf.CandidateStore
	series     rf.TimeSeries // nil when InfluxDB is disabled
	hub        rf.Broadcaster
	log        *logging.Logger
}

// startBridge loads a bridge config, creates the bridge on its serial
// transport and starts it.
func startBridge(ctx context.Context, entry bridgeEntry, deps bridgeDeps) (*rf.Bridge, error) {
	bridgeCfg, err := rf.LoadConfig(entry.configFile, entry.protocol)
	if err != nil {
		return nil, fmt.Errorf("loading bridge config: %w", err)
	}
	log := deps.log.With("bridge", bridgeCfg.Bridge.ID)
	log.Info("bridge config loaded",
		"path", entry.configFile,
		"port", bridgeCfg.Serial.Port,
		"devices", len(bridgeCfg.Devices),
	)

	bridge, err := rf.NewBridge(rf.BridgeOptions{
		Config:      bridgeCfg,
		Version:     version,
		MQTTClient:  deps.mqtt,
		Transport:   rf.NewSerialTransport(bridgeCfg),
		Store:       deps.candidates,
		TimeSeries:  deps.series,
		Broadcaster: deps.hub,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, err
	}
	log.Info("RF bridge started", "state", bridge.State().String())

	return bridge, nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The bridge's handlers return nothing; the
// infrastructure client expects an error.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements rf.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements rf.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements rf.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// runToken prints a signed API token. The secret comes from -secret, or
// from api.jwt_secret in the service config.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject (who the token is for)")
	roleName := fs.String("role", string(auth.RoleViewer), "role: viewer or operator")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "token lifetime")
	secret := fs.String("secret", "", "signing secret (default: api.jwt_secret from the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}
	role, err := auth.ParseRole(*roleName)
	if err != nil {
		return err
	}

	key := *secret
	if key == "" {
		cfg, err := config.Load(getConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		key = cfg.API.JWTSecret
	}

	token, err := auth.GenerateToken(*subject, role, key, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
