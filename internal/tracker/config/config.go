// Package config loads the tracker configuration: a TOML file with CLI
// overrides for the path and debug logging.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	ProductName = "guardtrack"

	DefaultConfigPath = "/etc/" + ProductName + "/config.toml"
	DefaultStorePath  = "/var/lib/" + ProductName + "/owner.bin"

	DefaultPort = "/dev/ttyS0"
	DefaultBaud = 9600
)

type CLIFlags struct {
	ConfigPath string
	Debug      bool
}

func ParseCLIFlags() CLIFlags {
	flags := CLIFlags{}

	flag.StringVar(&flags.ConfigPath, "config", DefaultConfigPath, "relative or absolute path to the config file")
	flag.BoolVar(&flags.Debug, "debug", false, "true if the debug logging should be enabled")

	flag.Parse()

	return flags
}

type DeviceConfig struct {
	// Port is the serial device of the modem UART.
	Port string `toml:"port"`
	// Baud must match the speed the modem was provisioned to.
	Baud int `toml:"baud"`
	// DisableLED turns the modem network LED off at startup.
	DisableLED bool `toml:"disable_led,omitempty"`
	// ConfigureRIPin makes the modem pulse RI on URCs, for boards with
	// the RI line routed to a wake capable GPIO.
	ConfigureRIPin bool `toml:"configure_ri_pin,omitempty"`
}

type SimConfig struct {
	// PIN is entered when the SIM asks for one.
	PIN string `toml:"pin,omitempty"`
}

type GuardConfig struct {
	// ThresholdMicroDeg is the movement threshold on either axis in
	// micro-degrees. 2700 is roughly 300 meters of latitude.
	ThresholdMicroDeg int64 `toml:"threshold_microdeg"`
}

type MainConfig struct {
	Device DeviceConfig `toml:"device"`
	Sim    SimConfig    `toml:"sim,omitempty"`
	Guard  GuardConfig  `toml:"guard,omitempty"`

	// StorePath is where the paired caller record lives.
	StorePath string `toml:"store_path,omitempty"`
}

// Load reads the TOML file and fills in the defaults. A missing file is
// fine, the defaults describe a standard board.
func Load(path string) (*MainConfig, error) {
	conf := &MainConfig{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	conf.setDefaults()

	if err := conf.Verify(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *MainConfig) setDefaults() {
	if c.Device.Port == "" {
		c.Device.Port = DefaultPort
	}
	if c.Device.Baud == 0 {
		c.Device.Baud = DefaultBaud
	}
	if c.Guard.ThresholdMicroDeg == 0 {
		c.Guard.ThresholdMicroDeg = 2700
	}
	if c.StorePath == "" {
		c.StorePath = DefaultStorePath
	}
}

// Verify checks the hard conditions the rest of the code relies on.
func (c *MainConfig) Verify() error {
	if c.Device.Baud < 0 {
		return fmt.Errorf("negative baudrate %d", c.Device.Baud)
	}
	if c.Guard.ThresholdMicroDeg < 0 {
		return fmt.Errorf("negative guard threshold %d", c.Guard.ThresholdMicroDeg)
	}
	return nil
}
