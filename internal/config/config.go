// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config defines the global configuration structure
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Slave   SlaveConfig   `mapstructure:"slave"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Timing  TimingConfig  `mapstructure:"timing"`
	Monitor MonitorConfig `mapstructure:"monitor"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SlaveConfig defines the local station
type SlaveConfig struct {
	Address      int           `mapstructure:"address"`
	ServerID     string        `mapstructure:"server_id"`     // Report Server ID payload
	PollInterval time.Duration `mapstructure:"poll_interval"` // Foreground cycle period
	Store        StoreConfig   `mapstructure:"store"`

	Identification IdentificationConfig `mapstructure:"identification"`
}

// IdentificationConfig holds the basic device identification objects
// returned by Read Device Identification.
type IdentificationConfig struct {
	VendorName  string `mapstructure:"vendor_name"`
	ProductCode string `mapstructure:"product_code"`
	Revision    string `mapstructure:"revision"` // MajorMinorRevision
}

// StoreConfig defines the register store
type StoreConfig struct {
	Coils            int           `mapstructure:"coils"`
	DiscreteInputs   int           `mapstructure:"discrete_inputs"`
	HoldingRegisters int           `mapstructure:"holding_registers"`
	InputRegisters   int           `mapstructure:"input_registers"`
	Image            string        `mapstructure:"image"` // Optional read-only seed image
	Initial          InitialValues `mapstructure:"initial"`
}

// InitialValues are applied to the store at start-up, before the image.
type InitialValues struct {
	Coils            []int           `mapstructure:"coils"`           // Addresses switched on
	DiscreteInputs   []int           `mapstructure:"discrete_inputs"` // Addresses switched on
	HoldingRegisters []RegisterValue `mapstructure:"holding_registers"`
	InputRegisters   []RegisterValue `mapstructure:"input_registers"`
}

type RegisterValue struct {
	Address int `mapstructure:"address"`
	Value   int `mapstructure:"value"`
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Driver   string        `mapstructure:"driver"` // "gridx", "bugst", "tcp"
	Device   string        `mapstructure:"device"` // Port name, or host:port for "tcp"
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits float64       `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Port read timeout

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// TimingConfig defines how character time is derived
type TimingConfig struct {
	UARTClockHz     uint32 `mapstructure:"uart_clock_hz"`  // 0 derives one tick per bit
	TimerClockHz    uint32 `mapstructure:"timer_clock_hz"` // 0 derives one tick per bit
	FixedAbove19200 bool   `mapstructure:"fixed_above_19200"`

	// Host floors for the 1.5 and 3.5 character silences, 0 disables
	MinMid time.Duration `mapstructure:"min_mid"`
	MinEnd time.Duration `mapstructure:"min_end"`
}

// MonitorConfig defines the websocket frame monitor
type MonitorConfig struct {
	Listen string `mapstructure:"listen"` // e.g. ":8502", empty disables
}

// maxObjectLength keeps one identification object within a single response.
const maxObjectLength = 240

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"log-file":  "log.file",
	"address":   "slave.address",
	"image":     "slave.store.image",
	"driver":    "serial.driver",
	"device":    "serial.device",
	"baud-rate": "serial.baud_rate",
	"parity":    "serial.parity",
	"monitor":   "monitor.listen",
	"min-mid":   "timing.min_mid",
	"min-end":   "timing.min_end",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("slave.address", 17)
	v.SetDefault("slave.server_id", "rtu-slave")
	v.SetDefault("slave.poll_interval", time.Millisecond)
	v.SetDefault("slave.identification.vendor_name", "ffutop")
	v.SetDefault("slave.identification.product_code", "rtu-slave")
	v.SetDefault("slave.identification.revision", "1.0")
	v.SetDefault("slave.store.coils", 256)
	v.SetDefault("slave.store.discrete_inputs", 256)
	v.SetDefault("slave.store.holding_registers", 128)
	v.SetDefault("slave.store.input_registers", 128)
	v.SetDefault("serial.driver", "gridx")
	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 19200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 50*time.Millisecond)
	v.SetDefault("timing.fixed_above_19200", true)
	v.SetDefault("timing.min_mid", 20*time.Millisecond)
	v.SetDefault("timing.min_end", 40*time.Millisecond)
}

// LoadConfig loads configuration from file, then applies any flags in fs
// that were set on the command line. Without an explicit configFile a
// missing config.yaml is not an error.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rtuslave/")
		v.AddConfigPath("$HOME/.rtuslave")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("No config file found, using defaults")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	s.Driver = strings.ToLower(s.Driver)
	if s.Timeout == 0 {
		s.Timeout = 50 * time.Millisecond
	}
}

// Validate checks ranges that the rest of the program relies on.
func (c *Config) Validate() error {
	if c.Slave.Address < 1 || c.Slave.Address > 255 {
		return fmt.Errorf("%w: slave address %d out of range [1, 255]", ErrInvalidConfig, c.Slave.Address)
	}
	if c.Slave.Address > 247 {
		slog.Warn("Slave address is in the reserved range", "address", c.Slave.Address)
	}
	if c.Slave.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}

	id := c.Slave.Identification
	for name, s := range map[string]string{
		"vendor_name":  id.VendorName,
		"product_code": id.ProductCode,
		"revision":     id.Revision,
	} {
		if len(s) > maxObjectLength {
			return fmt.Errorf("%w: identification %s longer than %d bytes", ErrInvalidConfig, name, maxObjectLength)
		}
	}

	st := c.Slave.Store
	for name, n := range map[string]int{
		"coils":             st.Coils,
		"discrete_inputs":   st.DiscreteInputs,
		"holding_registers": st.HoldingRegisters,
		"input_registers":   st.InputRegisters,
	} {
		if n < 1 || n > 65536 {
			return fmt.Errorf("%w: store %s capacity %d out of range [1, 65536]", ErrInvalidConfig, name, n)
		}
	}

	switch c.Serial.Driver {
	case "gridx", "bugst", "tcp":
	default:
		return fmt.Errorf("%w: unknown serial driver %q", ErrInvalidConfig, c.Serial.Driver)
	}
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, c.Serial.Parity)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.Serial.BaudRate)
	}

	if c.Timing.MinMid < 0 || c.Timing.MinEnd < 0 {
		return fmt.Errorf("%w: negative silence floor", ErrInvalidConfig)
	}
	if c.Timing.MinMid > 0 && c.Timing.MinEnd > 0 && c.Timing.MinMid >= c.Timing.MinEnd {
		return fmt.Errorf("%w: timing.min_mid %v must be below timing.min_end %v",
			ErrInvalidConfig, c.Timing.MinMid, c.Timing.MinEnd)
	}
	return nil
}
