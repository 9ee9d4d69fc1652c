package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/linht/eos/plugins"
	"github.com/linht/eos/transport"
)

// Configuration constants
const (
	// Server timeouts
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 30 * time.Second

	// Session management (24-hour expiry)
	SessionDuration = 24 * time.Hour
	TokenBytes      = 32
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
	Auth struct {
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"auth"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Transport transport.Config    `yaml:"transport"`
	Radio     plugins.RadioConfig `yaml:"radio"`
	Profiles  struct {
		Dir string `yaml:"dir"`
	} `yaml:"profiles"`
	MQTT    plugins.MQTTConfig `yaml:"mqtt"`
	Plugins []string           `yaml:"plugins"`
}

// Session represents a simple authenticated session for local use
type Session struct {
	Token     string
	ExpiresAt time.Time
}

var (
	config         Config
	currentSession *Session
	sessionMu      sync.RWMutex
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	dryRun := pflag.Bool("dry-run", false, "use an in-memory loopback link instead of radio hardware")
	pflag.Parse()

	// Load configuration
	if err := loadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *dryRun {
		config.Transport.Type = transport.TypeLoopback
	}

	logger := newLogger()
	slog.SetDefault(logger)
	slog.Info("Configuration loaded", "path", *configPath, "transport", config.Transport.Type)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		AppName:      "Eos",
	})

	// Add logger middleware
	app.Use(fiberLogger.New(fiberLogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// Serve static files
	app.Static("/", "./web")

	// Login/logout endpoints (no auth required for login)
	app.Post("/login", handleLogin)
	app.Post("/logout", handleLogout)

	// Auth middleware for all other API routes
	app.Use("/api", authMiddleware)

	// Open the radio link
	link, err := transport.Open(config.Transport, logger)
	if err != nil {
		slog.Error("Failed to open radio link", "error", err, "type", config.Transport.Type)
		os.Exit(1)
	}

	// Initialize and register plugins
	loaded, err := initPlugins(app, link, logger)
	if err != nil {
		slog.Error("Failed to initialize plugins", "error", err)
		link.Close()
		os.Exit(1)
	}

	// Start server with graceful shutdown
	addr := config.Server.Host + ":" + config.Server.Port

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Shutting down server...")
		if err := app.ShutdownWithContext(context.Background()); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Starting Eos", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("Failed to start server", "error", err, "address", addr)
	}

	shutdownPlugins(loaded)
	// The radio plugin closes the link; close it here if it never loaded
	if findRadio(loaded) == nil {
		link.Close()
	}
}

func loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Profiles.Dir == "" {
		config.Profiles.Dir = "profiles"
	}
	if len(config.Plugins) == 0 {
		config.Plugins = []string{"radio", "profiles", "metrics"}
	}
	config.Transport.SetDefaults()
	return nil
}

// newLogger builds the text handler, teeing into a rotated file when configured
func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(config.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if config.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.Log.File,
			MaxSize:    config.Log.MaxSizeMB,
			MaxBackups: config.Log.MaxBackups,
			MaxAge:     config.Log.MaxAgeDays,
			Compress:   true,
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}

func handleLogin(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(config.Auth.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Failed login attempt", "ip", c.IP())
		return c.Status(401).JSON(fiber.Map{"error": "Invalid password"})
	}

	slog.Info("Successful login", "ip", c.IP())

	// Generate new session (replaces any existing session for local-only use)
	session := &Session{
		Token:     generateToken(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}
	sessionMu.Lock()
	currentSession = session
	sessionMu.Unlock()

	return c.JSON(fiber.Map{
		"success": true,
		"token":   session.Token,
		"expires": session.ExpiresAt.Unix(),
	})
}

func handleLogout(c *fiber.Ctx) error {
	sessionMu.Lock()
	currentSession = nil
	sessionMu.Unlock()
	slog.Info("User logged out", "ip", c.IP())
	return c.JSON(fiber.Map{"success": true})
}

func authMiddleware(c *fiber.Ctx) error {
	// Check for token in header first, fallback to query parameter (for WebSocket)
	token := c.Get("X-Auth-Token")
	if token == "" {
		token = c.Query("token")
	}

	if !validateToken(token) {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func validateToken(token string) bool {
	if token == "" {
		return false
	}

	sessionMu.RLock()
	defer sessionMu.RUnlock()

	if currentSession == nil {
		return false
	}

	// Check token match and expiration
	if currentSession.Token != token {
		return false
	}

	if time.Now().After(currentSession.ExpiresAt) {
		return false
	}

	return true
}

func generateToken() string {
	b := make([]byte, TokenBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func initPlugins(app *fiber.App, link transport.Link, logger *slog.Logger) ([]plugins.Plugin, error) {
	var loaded []plugins.Plugin

	for _, name := range config.Plugins {
		factory, exists := plugins.Get(name)
		if !exists {
			slog.Warn("Unknown plugin", "name", name, "available", plugins.Names())
			continue
		}

		// Get plugin-specific config
		var pluginConfig interface{}
		switch name {
		case "radio":
			opts := plugins.RadioOptions{
				Config: config.Radio,
				Link:   link,
				Logger: logger,
			}
			if config.MQTT.Enabled {
				pub, err := plugins.NewMQTTPublisher(config.MQTT)
				if err != nil {
					shutdownPlugins(loaded)
					return nil, err
				}
				opts.Publisher = pub
			}
			pluginConfig = opts
		case "profiles":
			radioPlugin := findRadio(loaded)
			if radioPlugin == nil {
				shutdownPlugins(loaded)
				return nil, fmt.Errorf("profiles plugin must be listed after radio")
			}
			pluginConfig = plugins.ProfilesOptions{
				Dir:   config.Profiles.Dir,
				Store: radioPlugin,
			}
		}

		plugin, err := factory(pluginConfig)
		if err != nil {
			shutdownPlugins(loaded)
			return nil, err
		}

		// Set token validator for plugins
		if radioPlugin, ok := plugin.(*plugins.RadioPlugin); ok {
			radioPlugin.SetTokenValidator(validateToken)
		}

		plugin.RegisterRoutes(app)
		loaded = append(loaded, plugin)
		slog.Info("Plugin loaded", "name", plugin.Name())
	}
	return loaded, nil
}

func findRadio(loaded []plugins.Plugin) *plugins.RadioPlugin {
	for _, p := range loaded {
		if rp, ok := p.(*plugins.RadioPlugin); ok {
			return rp
		}
	}
	return nil
}

func shutdownPlugins(loaded []plugins.Plugin) {
	for i := len(loaded) - 1; i >= 0; i-- {
		if err := loaded[i].Shutdown(); err != nil {
			slog.Error("Plugin shutdown error", "name", loaded[i].Name(), "error", err)
		}
	}
}
