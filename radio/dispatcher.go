package radio

import (
	"encoding"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linht/eos/protocol"
)

// Transport is the byte link to the radio bridge. Write blocks until the
// whole frame is handed to the link.
type Transport interface {
	Write(frame []byte) error
}

var (
	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eos_frames_sent_total",
		Help: "Frames written to the radio link, by command",
	}, []string{"command"})
	framesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eos_frames_failed_total",
		Help: "Frames that could not be serialized or written, by command",
	}, []string{"command"})
)

// Dispatcher turns register operations into framed commands. Each call emits
// exactly one frame; there is no retry and no wait for an acknowledgement.
type Dispatcher struct {
	transport Transport
	log       *slog.Logger
}

// NewDispatcher creates a dispatcher writing to t
func NewDispatcher(t Transport, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{transport: t, log: log}
}

func (d *Dispatcher) send(cmd protocol.CommandID, payload encoding.BinaryMarshaler) error {
	label := cmd.String()

	packet, err := protocol.NewPacket(cmd, payload)
	if err != nil {
		framesFailed.WithLabelValues(label).Inc()
		return err
	}
	frame, err := protocol.EncodeFrame(packet)
	if err != nil {
		framesFailed.WithLabelValues(label).Inc()
		return err
	}

	if err := d.transport.Write(frame); err != nil {
		framesFailed.WithLabelValues(label).Inc()
		d.log.Warn("frame write failed", "command", label, "error", err)
		return &TransportError{Command: label, Err: err}
	}

	framesSent.WithLabelValues(label).Inc()
	d.log.Debug("frame sent", "command", label, "bytes", len(frame))
	return nil
}

// WriteRegister sends one register value
func (d *Dispatcher) WriteRegister(reg Register, value byte) error {
	if !reg.Valid() {
		return &InvalidInputError{Quantity: QuantityRegister, Reason: "unknown register " + reg.String()}
	}
	return d.send(protocol.WriteRegister, protocol.WriteRegisterFrame{
		Address: reg.WireAddress(),
		Value:   value,
	})
}

// WriteRegisters sends the listed registers from regs in order, stopping at
// the first failure.
func (d *Dispatcher) WriteRegisters(regs Registers, list []Register) error {
	for _, reg := range list {
		if err := d.WriteRegister(reg, regs.Get(reg)); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegister asks the bridge to report a register value. The reply, if
// any, arrives on the receive path.
func (d *Dispatcher) ReadRegister(reg Register) error {
	if !reg.Valid() {
		return &InvalidInputError{Quantity: QuantityRegister, Reason: "unknown register " + reg.String()}
	}
	return d.send(protocol.ReadRegister, protocol.ReadRegisterFrame{Address: reg.WireAddress()})
}

// Ping sends an empty keepalive command
func (d *Dispatcher) Ping() error {
	return d.send(protocol.Ping, nil)
}

// PerformAction sends a radio strobe
func (d *Dispatcher) PerformAction(a protocol.Action) error {
	return d.send(protocol.PerformAction, protocol.ActionFrame{Action: a})
}
