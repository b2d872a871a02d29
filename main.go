package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voicebridge/controlplane"
	"voicebridge/core"
	"voicebridge/memory"
	"voicebridge/orchestrator"
	"voicebridge/protocol"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
)

const version = "1.0.0"

func main() {
	var connectURL string
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of UI control plane (e.g. ws://ui:8888/ws/client)")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := core.GetLogger()

	orch := orchestrator.New(orchestratorConfigFromEnv(), logger)
	mem := memory.NewManager(memory.DefaultConfig(), logger)
	mem.SetPruneListener(func(removed, remaining int) {
		logger.With(map[string]any{"removed": removed, "remaining": remaining}).Debug("conversation memory pruned")
	})

	if connectURL != "" {
		runConnectedMode(ctx, cancel, connectURL, orch)
	} else {
		go statusLoop(ctx, orch, nil)
		go chatLoop(ctx, cancel, orch, mem)
	}

	// Warm the chat model so the first real turn is not a cold start.
	go func() {
		model := getEnv("CHAT_MODEL", "llama3")
		if err := orch.WarmUp(ctx, model); err != nil {
			logger.With(map[string]any{"model": model, "error": err}).Warn("model warm-up failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.With(map[string]any{"signal": sig.String()}).Info("signal received")
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	orch.CancelAll()
	cancel()
	time.Sleep(500 * time.Millisecond)
}

// runConnectedMode connects to the UI control plane via WebSocket, mirrors
// health and load upward, and applies config pushed back down. The client
// shuts down when the connection drops.
func runConnectedMode(ctx context.Context, cancel context.CancelFunc, connectURL string, orch *orchestrator.Orchestrator) {
	logger := core.GetLogger().With(map[string]any{"component": "connected"})

	clientID := os.Getenv("CLIENT_ID")
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = hostname
	}

	client := controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL: connectURL,
		ClientID:   clientID,
		Version:    version,
		Logger:     logger,
		StatsFunc: func() (int, int, int) {
			stats := orch.Snapshot()
			return stats.ActiveCalls, stats.QueuedCalls, stats.CacheEntries
		},
	})

	client.OnShutdown = func(reason string) {
		logger.With(map[string]any{"reason": reason}).Info("shutdown requested by control plane")
		cancel()
	}
	client.OnCancelAll = func(reason string) {
		orch.CancelAll()
	}
	client.OnConfigUpdate = func(p protocol.ConfigUpdatePayload) {
		update := orchestrator.ConfigUpdate{
			Endpoints: make(map[core.Service]string, len(p.Endpoints)),
			TTSModel:  p.TTSModel,
			TTSVoice:  p.TTSVoice,
		}
		for svc, url := range p.Endpoints {
			update.Endpoints[core.Service(svc)] = url
		}
		orch.UpdateConfig(update)
		logger.Info("applied config update from control plane")
	}

	if err := client.Connect(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to connect to control plane")
		cancel()
		return
	}

	// Mirror subsequent log records to the UI. The control plane's own
	// internals keep the plain handler so a failing connection cannot feed
	// back into itself.
	core.SetLogger(*controlplane.AttachLogMirror(client, core.GetLogger()))

	go statusLoop(ctx, orch, client)

	go func() {
		client.Wait()
		logger.Info("control plane connection lost, shutting down")
		cancel()
	}()
}

// chatLoop is the standalone-mode console conversation. Each line typed on
// stdin becomes a user turn; the bounded memory manager supplies the context
// window for every request.
func chatLoop(ctx context.Context, cancel context.CancelFunc, orch *orchestrator.Orchestrator, mem *memory.Manager) {
	logger := core.GetLogger().With(map[string]any{"component": "chat"})
	model := getEnv("CHAT_MODEL", "llama3")

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "/quit" {
			cancel()
			return
		}

		mem.AddMessage(core.RoleUser, line)
		reply, err := orch.SendChat(ctx, mem.Context(), model, orchestrator.ChatParams{})
		if err != nil {
			logger.With(map[string]any{"error": err}).Error("chat request failed")
			fmt.Print("> ")
			continue
		}
		mem.AddMessage(core.RoleAssistant, reply)
		fmt.Println(reply)
		fmt.Print("> ")
	}
}

// statusLoop probes every service on a fixed interval. When a control plane
// client is attached the results are mirrored upward.
func statusLoop(ctx context.Context, orch *orchestrator.Orchestrator, client *controlplane.Client) {
	interval := time.Duration(getEnvAsInt("STATUS_INTERVAL_SECONDS", 30)) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	probe := func() {
		health := make([]protocol.ServiceHealth, 0, len(core.Services))
		for _, svc := range core.Services {
			healthy := orch.CheckStatus(ctx, svc)
			health = append(health, protocol.ServiceHealth{
				Service:   string(svc),
				Healthy:   healthy,
				Endpoint:  orch.Endpoint(svc),
				CheckedAt: time.Now().UTC(),
			})
		}
		if client != nil {
			client.SendStatus(health)
		}
	}

	probe()
	for {
		select {
		case <-ticker.C:
			probe()
		case <-ctx.Done():
			return
		}
	}
}

// settings is the optional JSON settings file. Env vars win over file
// values; defaults fill whatever is left.
type settings struct {
	Host         string            `json:"host,omitempty"`
	Secure       bool              `json:"secure,omitempty"`
	TTSModel     string            `json:"tts_model,omitempty"`
	TTSVoice     string            `json:"tts_voice,omitempty"`
	QueueCeiling int               `json:"queue_ceiling,omitempty"`
	Endpoints    map[string]string `json:"endpoints,omitempty"`
}

func loadSettings() settings {
	var s settings
	path := getEnv("SETTINGS_PATH", "./settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := sonic.Unmarshal(data, &s); err != nil {
		core.GetLogger().With(map[string]any{"path": path, "error": err}).Warn("failed to parse settings, using defaults")
		return settings{}
	}
	core.GetLogger().With(map[string]any{"path": path}).Info("loaded settings")
	return s
}

func orchestratorConfigFromEnv() orchestrator.Config {
	s := loadSettings()

	cfg := orchestrator.DefaultConfig()
	if s.Host != "" {
		cfg.Host = s.Host
	}
	cfg.Host = getEnv("VOICEBRIDGE_HOST", cfg.Host)
	cfg.Secure = s.Secure || getEnv("VOICEBRIDGE_SECURE", "") == "true"
	cfg.OverridePath = getEnv("OVERRIDES_PATH", "./endpoint_overrides.json")
	if s.TTSModel != "" {
		cfg.TTSModel = s.TTSModel
	}
	if s.TTSVoice != "" {
		cfg.TTSVoice = s.TTSVoice
	}
	cfg.TTSModel = getEnv("TTS_MODEL", cfg.TTSModel)
	cfg.TTSVoice = getEnv("TTS_VOICE", cfg.TTSVoice)
	if s.QueueCeiling > 0 {
		cfg.QueueCeiling = s.QueueCeiling
	}
	if ceiling := getEnvAsInt("QUEUE_CEILING", 0); ceiling > 0 {
		cfg.QueueCeiling = ceiling
	}

	cfg.Endpoints = make(map[core.Service]string)
	for svc, url := range s.Endpoints {
		cfg.Endpoints[core.Service(svc)] = url
	}
	for _, svc := range core.Services {
		// CHAT_ENDPOINT, TTS_ENDPOINT, STT_ENDPOINT
		if url := os.Getenv(strings.ToUpper(string(svc)) + "_ENDPOINT"); url != "" {
			cfg.Endpoints[svc] = url
		}
	}
	return cfg
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer with a default fallback
func getEnvAsInt(key string, defaultValue int) int {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}
