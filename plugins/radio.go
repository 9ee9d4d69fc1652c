package plugins

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linht/eos/protocol"
	"github.com/linht/eos/radio"
	"github.com/linht/eos/transport"
)

var (
	rxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eos_rx_bytes_total",
		Help: "Bytes drained from the radio link receive queue",
	})
	streamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eos_rx_stream_subscribers",
		Help: "Open websocket receive streams",
	})
)

// RadioConfig holds radio plugin settings
type RadioConfig struct {
	PollIntervalMs int  `yaml:"poll_interval_ms"`
	RxBufferSize   int  `yaml:"rx_buffer_size"` // 0 keeps every byte
	SyncOnStart    bool `yaml:"sync_on_start"`
}

// RadioOptions is the factory config for the radio plugin
type RadioOptions struct {
	Config    RadioConfig
	Link      transport.Link
	Publisher SettingsPublisher
	Logger    *slog.Logger
}

// RadioPlugin owns the CC2510 register image and pushes every change to the
// bridge. All register mutations go through mu.
type RadioPlugin struct {
	config     RadioConfig
	link       transport.Link
	dispatcher *radio.Dispatcher
	publisher  SettingsPublisher
	log        *slog.Logger

	mu      sync.Mutex
	session *radio.Session

	rxMu sync.Mutex
	rx   []byte

	subsMu sync.RWMutex
	subs   map[string]chan []byte

	tokenValidator TokenValidator

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRadioPlugin creates the plugin and starts the receive drain loop
func NewRadioPlugin(opts RadioOptions) (*RadioPlugin, error) {
	if opts.Link == nil {
		return nil, fmt.Errorf("radio plugin requires a transport link")
	}
	cfg := opts.Config
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 50
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &RadioPlugin{
		config:     cfg,
		link:       opts.Link,
		dispatcher: radio.NewDispatcher(opts.Link, log),
		publisher:  opts.Publisher,
		log:        log,
		session:    radio.NewSession(radio.ResetRegisters()),
		subs:       make(map[string]chan []byte),
		stop:       make(chan struct{}),
	}

	if cfg.SyncOnStart {
		regs := p.session.Registers()
		if err := p.dispatcher.WriteRegisters(regs, radio.AllRegisters()); err != nil {
			log.Warn("Initial register sync failed", "error", err)
		}
	}

	p.wg.Add(1)
	go p.drainLoop()

	log.Info("Radio plugin initializing",
		"poll_interval_ms", cfg.PollIntervalMs,
		"rx_buffer_size", cfg.RxBufferSize)
	return p, nil
}

// SetTokenValidator sets the token validation function for the stream
func (p *RadioPlugin) SetTokenValidator(validator TokenValidator) {
	p.tokenValidator = validator
}

// Name returns the plugin identifier
func (p *RadioPlugin) Name() string {
	return "radio"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *RadioPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/radio")

	// Register access
	api.Get("/registers", p.handleRegisters)
	api.Get("/register/:name", p.handleGetRegister)
	api.Post("/register/:name", p.handleWriteRegister)
	api.Post("/read/:name", p.handleReadRegister)

	// Physical quantities
	api.Get("/settings", p.handleSettings)
	api.Get("/limits", p.handleLimits)
	api.Post("/frequency", p.textSetter((*radio.Session).SetFrequency))
	api.Post("/deviation", p.textSetter((*radio.Session).SetDeviation))
	api.Post("/datarate", p.textSetter((*radio.Session).SetDataRate))
	api.Post("/channel", p.textSetter((*radio.Session).SetChannel))
	api.Post("/spacing", p.textSetter((*radio.Session).SetChannelSpacing))
	api.Post("/bandwidth", p.textSetter((*radio.Session).SetBandwidth))
	api.Post("/modulation", p.textSetter((*radio.Session).SetModulation))
	api.Post("/txpower", p.handleTxPower)
	api.Post("/phase", p.handlePhase)
	api.Post("/whitening", p.toggleSetter((*radio.Session).SetWhitening))
	api.Post("/manchester", p.toggleSetter((*radio.Session).SetManchester))

	// Link commands
	api.Post("/ping", p.handlePing)
	api.Post("/action", p.handleAction)
	api.Post("/sync", p.handleSync)
	api.Post("/reset", p.handleReset)
	api.Get("/link", p.handleLink)

	// Receive path
	api.Get("/rx", p.handleRx)
	api.Use("/ws", p.upgradeCheck)
	api.Get("/ws", websocket.New(p.handleStream))

	p.log.Info("Radio plugin routes registered")
}

// Shutdown stops the drain loop, closes streams and the link
func (p *RadioPlugin) Shutdown() error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stop)
		p.wg.Wait()

		p.subsMu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
			streamSubscribers.Dec()
		}
		p.subsMu.Unlock()

		if p.publisher != nil {
			p.publisher.Close()
		}
		err = p.link.Close()
	})
	return err
}

// Snapshot returns a copy of the current register image
func (p *RadioPlugin) Snapshot() radio.Registers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.Registers()
}

// LoadRegisters replaces the register image and sends what changed
func (p *RadioPlugin) LoadRegisters(regs radio.Registers) ([]radio.Register, error) {
	return p.mutate(func(s *radio.Session) ([]radio.Register, error) {
		return s.Load(regs), nil
	})
}

// mutate runs one session operation under the lock, then writes the changed
// registers to the link. A transport failure leaves the local image updated;
// /sync resends it.
func (p *RadioPlugin) mutate(fn func(s *radio.Session) ([]radio.Register, error)) ([]radio.Register, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed, err := fn(p.session)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return changed, nil
	}

	regs := p.session.Registers()
	sendErr := p.dispatcher.WriteRegisters(regs, changed)

	if p.publisher != nil {
		p.publisher.PublishSettings(regs, changed)
	}
	return changed, sendErr
}

// changeResult is the response body for every mutation
func (p *RadioPlugin) changeResult(changed []radio.Register) fiber.Map {
	regs := p.Snapshot()
	values := make(map[string]string, len(changed))
	for _, reg := range changed {
		values[reg.String()] = fmt.Sprintf("0x%02X", regs.Get(reg))
	}
	return fiber.Map{
		"changed":  values,
		"settings": radio.DecodeSettings(regs),
	}
}

func (p *RadioPlugin) respondChange(c *fiber.Ctx, changed []radio.Register, err error, what string) error {
	if err != nil {
		p.log.Warn("Radio update failed", "setting", what, "error", err)
		return SendRadioError(c, err)
	}
	p.log.Info("Radio updated", "setting", what, "registers", len(changed))
	return SendSuccess(c, p.changeResult(changed), what+" updated")
}

// valueRequest accepts {"value": "2433.0"} or {"value": 2433}
type valueRequest struct {
	Value interface{} `json:"value"`
}

func (r valueRequest) text() (string, bool) {
	switch v := r.Value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

func (r valueRequest) integer() (int, bool) {
	text, ok := r.text()
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(text)
	return v, err == nil
}

func (p *RadioPlugin) textSetter(set func(*radio.Session, string) ([]radio.Register, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req valueRequest
		if err := c.BodyParser(&req); err != nil {
			return SendErrorMessage(c, 400, "Invalid request body")
		}
		text, ok := req.text()
		if !ok {
			return SendErrorMessage(c, 400, "value must be a string or number")
		}

		changed, err := p.mutate(func(s *radio.Session) ([]radio.Register, error) {
			return set(s, text)
		})
		return p.respondChange(c, changed, err, routeName(c))
	}
}

func (p *RadioPlugin) toggleSetter(set func(*radio.Session, bool) ([]radio.Register, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := c.BodyParser(&req); err != nil {
			return SendErrorMessage(c, 400, "Invalid request body")
		}

		changed, err := p.mutate(func(s *radio.Session) ([]radio.Register, error) {
			return set(s, req.Enabled)
		})
		return p.respondChange(c, changed, err, routeName(c))
	}
}

// routeName is the last path segment, used as the setting name in logs
func routeName(c *fiber.Ctx) string {
	path := c.Route().Path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func (p *RadioPlugin) handleTxPower(c *fiber.Ctx) error {
	var req valueRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	dbm, ok := req.integer()
	if !ok {
		return SendErrorMessage(c, 400, "tx power must be an integer dBm level")
	}

	changed, err := p.mutate(func(s *radio.Session) ([]radio.Register, error) {
		return s.SetTxPower(dbm)
	})
	return p.respondChange(c, changed, err, "txpower")
}

func (p *RadioPlugin) handlePhase(c *fiber.Ctx) error {
	var req valueRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	value, ok := req.integer()
	if !ok {
		return SendErrorMessage(c, 400, "phase transition must be an integer 0-7")
	}

	changed, err := p.mutate(func(s *radio.Session) ([]radio.Register, error) {
		return s.SetPhaseTransition(value)
	})
	return p.respondChange(c, changed, err, "phase")
}

// Register handlers

type registerView struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	WireAddress string `json:"wire_address"`
	Value       string `json:"value"`
	ValueDec    uint8  `json:"value_dec"`
	Reset       string `json:"reset"`
	Description string `json:"description"`
}

func newRegisterView(reg radio.Register, value byte) registerView {
	return registerView{
		Name:        reg.String(),
		Address:     fmt.Sprintf("0x%04X", reg.Address()),
		WireAddress: fmt.Sprintf("0x%02X", reg.WireAddress()),
		Value:       fmt.Sprintf("0x%02X", value),
		ValueDec:    value,
		Reset:       fmt.Sprintf("0x%02X", reg.ResetValue()),
		Description: reg.Description(),
	}
}

func (p *RadioPlugin) lookup(c *fiber.Ctx) (radio.Register, bool) {
	return radio.LookupRegister(c.Params("name"))
}

func (p *RadioPlugin) handleRegisters(c *fiber.Ctx) error {
	regs := p.Snapshot()
	list := make([]registerView, 0, radio.NumRegisters)
	for _, reg := range radio.AllRegisters() {
		list = append(list, newRegisterView(reg, regs.Get(reg)))
	}
	return SendSuccess(c, fiber.Map{
		"registers": list,
		"count":     len(list),
	}, "")
}

func (p *RadioPlugin) handleGetRegister(c *fiber.Ctx) error {
	reg, ok := p.lookup(c)
	if !ok {
		return SendErrorMessage(c, 404, "Unknown register")
	}
	regs := p.Snapshot()
	return SendSuccess(c, newRegisterView(reg, regs.Get(reg)), "")
}

func (p *RadioPlugin) handleWriteRegister(c *fiber.Ctx) error {
	reg, ok := p.lookup(c)
	if !ok {
		return SendErrorMessage(c, 404, "Unknown register")
	}

	var req valueRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	text, ok := req.text()
	if !ok {
		return SendErrorMessage(c, 400, "value must be a byte")
	}
	// accepts decimal or 0x-prefixed hex
	value, err := strconv.ParseUint(text, 0, 8)
	if err != nil {
		return SendErrorMessage(c, 400, "value must be a byte (0-255 or 0x00-0xFF)")
	}

	changed, err := p.mutate(func(s *radio.Session) ([]radio.Register, error) {
		return s.WriteRaw(reg, byte(value))
	})
	return p.respondChange(c, changed, err, reg.String())
}

func (p *RadioPlugin) handleReadRegister(c *fiber.Ctx) error {
	reg, ok := p.lookup(c)
	if !ok {
		return SendErrorMessage(c, 404, "Unknown register")
	}
	if err := p.dispatcher.ReadRegister(reg); err != nil {
		return SendRadioError(c, err)
	}
	return SendSuccess(c, nil, "Read request sent for "+reg.String())
}

func (p *RadioPlugin) handleSettings(c *fiber.Ctx) error {
	return SendSuccess(c, radio.DecodeSettings(p.Snapshot()), "")
}

type limitView struct {
	Unit string  `json:"unit,omitempty"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

func (p *RadioPlugin) handleLimits(c *fiber.Ctx) error {
	limits := make(map[string]limitView)
	for _, q := range []radio.Quantity{
		radio.QuantityFrequency,
		radio.QuantityDeviation,
		radio.QuantityDataRate,
		radio.QuantityChannel,
		radio.QuantityChannelSpacing,
		radio.QuantityBandwidth,
		radio.QuantityPhaseTransition,
	} {
		lo, hi := q.Bounds()
		limits[q.String()] = limitView{Unit: q.Unit(), Min: lo, Max: hi}
	}

	return SendSuccess(c, fiber.Map{
		"limits":          limits,
		"tx_power_levels": radio.TxPowerLevels(),
		"modulations": []string{
			radio.Modulation2FSK.String(),
			radio.ModulationGFSK.String(),
			radio.ModulationMSK.String(),
		},
		"frequency_step_mhz": radio.FrequencyStep(),
	}, "")
}

// Link command handlers

func (p *RadioPlugin) handlePing(c *fiber.Ctx) error {
	if err := p.dispatcher.Ping(); err != nil {
		return SendRadioError(c, err)
	}
	return SendSuccess(c, nil, "Ping sent")
}

func (p *RadioPlugin) handleAction(c *fiber.Ctx) error {
	var req struct {
		Action string `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	action, ok := protocol.ParseAction(req.Action)
	if !ok {
		return SendErrorMessage(c, 400, "Unknown action (use sfstxon, scal, srx, stx or sidle)")
	}

	if err := p.dispatcher.PerformAction(action); err != nil {
		return SendRadioError(c, err)
	}
	p.log.Info("Radio action sent", "action", action.String())
	return SendSuccess(c, nil, "Action "+action.String()+" sent")
}

func (p *RadioPlugin) handleSync(c *fiber.Ctx) error {
	p.mu.Lock()
	regs := p.session.Registers()
	err := p.dispatcher.WriteRegisters(regs, radio.AllRegisters())
	p.mu.Unlock()

	if err != nil {
		return SendRadioError(c, err)
	}
	return SendSuccess(c, fiber.Map{"count": radio.NumRegisters}, "All registers sent")
}

// resetter is implemented by links with a hardware reset line
type resetter interface {
	Reset() error
}

func (p *RadioPlugin) handleReset(c *fiber.Ctx) error {
	r, ok := p.link.(resetter)
	if !ok {
		return SendErrorMessage(c, 501, "Link has no reset control")
	}
	if err := r.Reset(); err != nil {
		if errors.Is(err, transport.ErrNoResetLine) {
			return SendErrorMessage(c, 501, "Link has no reset control")
		}
		p.log.Error("Bridge reset failed", "error", err)
		return SendError(c, 500, err)
	}
	p.log.Info("Bridge reset")
	return SendSuccess(c, nil, "Bridge reset")
}

// linkInfo is implemented by links that can describe themselves
type linkInfo interface {
	Info() string
}

func (p *RadioPlugin) handleLink(c *fiber.Ctx) error {
	kind := transport.TypeOf(p.link)
	status := fiber.Map{
		"type":        kind,
		"rx_queued":   p.link.Received().Len(),
		"reset_ready": false,
	}
	if li, ok := p.link.(linkInfo); ok {
		status["info"] = li.Info()
	}
	if _, ok := p.link.(resetter); ok {
		status["reset_ready"] = true
	}

	if kind == transport.TypeSerial {
		ports, err := transport.Ports()
		if err != nil {
			p.log.Warn("Failed to list serial ports", "error", err)
		}
		status["ports"] = ports
	}
	return SendSuccess(c, status, "")
}

// Receive path

// drainLoop moves received bytes from the link queue into the rx buffer and
// out to stream subscribers. It is the queue's only consumer.
func (p *RadioPlugin) drainLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(p.config.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.drainOnce()
		}
	}
}

func (p *RadioPlugin) drainOnce() {
	data := p.link.Received().Drain()
	if len(data) == 0 {
		return
	}
	rxBytes.Add(float64(len(data)))

	p.rxMu.Lock()
	p.rx = append(p.rx, data...)
	if p.config.RxBufferSize > 0 {
		if over := len(p.rx) - p.config.RxBufferSize; over > 0 {
			p.rx = append([]byte(nil), p.rx[over:]...)
		}
	}
	p.rxMu.Unlock()

	p.subsMu.RLock()
	for id, ch := range p.subs {
		select {
		case ch <- data:
		default:
			p.log.Debug("Dropping rx chunk for slow subscriber", "id", id, "bytes", len(data))
		}
	}
	p.subsMu.RUnlock()
}

func (p *RadioPlugin) handleRx(c *fiber.Ctx) error {
	p.rxMu.Lock()
	data := append([]byte(nil), p.rx...)
	if c.QueryBool("clear") {
		p.rx = nil
	}
	p.rxMu.Unlock()

	return SendSuccess(c, fiber.Map{
		"hex":    hex.EncodeToString(data),
		"length": len(data),
	}, "")
}

func (p *RadioPlugin) upgradeCheck(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if p.tokenValidator != nil && !p.tokenValidator(c.Query("token")) {
		return SendErrorMessage(c, 401, "Unauthorized")
	}
	return c.Next()
}

func (p *RadioPlugin) subscribe() (string, chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, 64)

	p.subsMu.Lock()
	p.subs[id] = ch
	p.subsMu.Unlock()

	streamSubscribers.Inc()
	return id, ch
}

func (p *RadioPlugin) unsubscribe(id string) {
	p.subsMu.Lock()
	if ch, ok := p.subs[id]; ok {
		close(ch)
		delete(p.subs, id)
		streamSubscribers.Dec()
	}
	p.subsMu.Unlock()
}

// handleStream forwards received bytes as binary websocket messages
func (p *RadioPlugin) handleStream(c *websocket.Conn) {
	id, ch := p.subscribe()
	defer p.unsubscribe(id)
	p.log.Info("Rx stream opened", "id", id)

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			p.log.Info("Rx stream closed", "id", id)
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
	}
}

// Register the plugin
func init() {
	Register("radio", func(config interface{}) (Plugin, error) {
		opts, ok := config.(RadioOptions)
		if !ok {
			return nil, fmt.Errorf("invalid config for radio plugin")
		}
		return NewRadioPlugin(opts)
	})
}
