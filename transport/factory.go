package transport

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config selects and configures exactly one Transport carrier. Exactly one
// of PortName, BrokerURL, PacketLog or PacketDict must be set; PacketLog and
// PacketDict produce a read-only FileTransport, PortName a SerialTransport
// (or, with an "mqtt://" prefix, an MqttTransport), BrokerURL always an
// MqttTransport.
type Config struct {
	PortName string
	Baud     int

	BrokerURL string

	PacketLog  string
	PacketDict map[string]string
	RealTime   bool

	MaxDutyCycle float64
	DutyWindow   time.Duration
	MinWriteGap  time.Duration

	EvofwFlag string

	InboundRegex  map[string]string
	OutboundRegex map[string]string
}

// New builds the Transport cfg selects. It does not Start it.
func New(cfg Config, logger *slog.Logger) (Transport, error) {
	sources := 0
	if cfg.PortName != "" {
		sources++
	}
	if cfg.BrokerURL != "" {
		sources++
	}
	if cfg.PacketLog != "" {
		sources++
	}
	if cfg.PacketDict != nil {
		sources++
	}
	if sources != 1 {
		return nil, fmt.Errorf("transport: exactly one of port_name, broker_url, packet_log, packet_dict must be set (got %d)", sources)
	}

	switch {
	case cfg.BrokerURL != "":
		return NewMqttTransport(MqttConfig{
			BrokerURL:     cfg.BrokerURL,
			InboundRegex:  cfg.InboundRegex,
			OutboundRegex: cfg.OutboundRegex,
		}, logger)

	case strings.HasPrefix(cfg.PortName, "mqtt://"):
		return NewMqttTransport(MqttConfig{
			BrokerURL:     cfg.PortName,
			InboundRegex:  cfg.InboundRegex,
			OutboundRegex: cfg.OutboundRegex,
		}, logger)

	case cfg.PortName != "":
		return NewSerialTransport(SerialConfig{
			PortName:      cfg.PortName,
			Baud:          cfg.Baud,
			MaxDutyCycle:  cfg.MaxDutyCycle,
			DutyWindow:    cfg.DutyWindow,
			MinWriteGap:   cfg.MinWriteGap,
			EvofwFlag:     cfg.EvofwFlag,
			InboundRegex:  cfg.InboundRegex,
			OutboundRegex: cfg.OutboundRegex,
		}, logger)

	case cfg.PacketLog != "":
		t := NewFileTransport(FileConfig{Path: cfg.PacketLog, RealTime: cfg.RealTime}, logger)
		t.hacks = compileRegexPipeline(cfg.InboundRegex, nil, t.logger)
		return t, nil

	default: // cfg.PacketDict != nil
		t := NewFileTransport(FileConfig{Dict: cfg.PacketDict, RealTime: cfg.RealTime}, logger)
		t.hacks = compileRegexPipeline(cfg.InboundRegex, nil, t.logger)
		return t, nil
	}
}
