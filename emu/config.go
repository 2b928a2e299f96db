package emu

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"picohdmi/emu/log"
	"picohdmi/hw/hdmi"
	"picohdmi/hw/hwdefs"
	"picohdmi/hw/tmds"
)

type Config struct {
	Video    VideoConfig    `toml:"video"`
	Pins     PinsConfig     `toml:"pins"`
	Watchdog WatchdogConfig `toml:"watchdog"`
}

type VideoConfig struct {
	Mode        hwdefs.DisplayMode `toml:"mode"`
	SysClock    uint32             `toml:"sysclock"`
	BlinkFrames int                `toml:"blink_frames"`
	Palette     string             `toml:"palette"`
	Background  uint32             `toml:"background"`
}

type PinsConfig struct {
	Base   uint8               `toml:"base"`
	Order  hwdefs.ChannelOrder `toml:"order"`
	Invert bool                `toml:"invert"`
}

type WatchdogConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
}

// Duration is a time.Duration written as a string ("250ms") in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Sysclock the video pipeline was tuned for: the serializer runs at full
// speed, one 6-bit unit per cycle.
const defaultSysClock = hwdefs.BitClock

func DefaultConfig() Config {
	return Config{
		Video: VideoConfig{
			Mode:        hwdefs.Text80x25Color,
			SysClock:    defaultSysClock,
			BlinkFrames: hdmi.DefaultConfig().BlinkFrames,
			Palette:     "vga",
		},
		Pins: PinsConfig{
			Base:  hdmi.DefaultConfig().BasePin,
			Order: hwdefs.RGB,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Interval: Duration{2 * time.Second},
		},
	}
}

// Check fixes invalid values, falling back to defaults.
func (cfg *Config) Check() {
	def := DefaultConfig()
	if cfg.Video.Mode >= hwdefs.NumDisplayModes {
		log.ModEmu.Warnf("Invalid display mode %d, fallback to %s", cfg.Video.Mode, def.Video.Mode)
		cfg.Video.Mode = def.Video.Mode
	}
	if cfg.Video.SysClock < hwdefs.BitClock {
		log.ModEmu.Warnf("System clock %d Hz too slow for the bit clock, fallback to %d", cfg.Video.SysClock, def.Video.SysClock)
		cfg.Video.SysClock = def.Video.SysClock
	}
	if cfg.Video.BlinkFrames <= 0 {
		cfg.Video.BlinkFrames = def.Video.BlinkFrames
	}
	if _, ok := tmds.PresetByName(cfg.Video.Palette); !ok {
		log.ModEmu.Warnf("Invalid palette preset %q, fallback to %q", cfg.Video.Palette, def.Video.Palette)
		cfg.Video.Palette = def.Video.Palette
	}
	if cfg.Pins.Base > 30-8 {
		log.ModEmu.Warnf("Base pin %d leaves no room for 8 pins, fallback to %d", cfg.Pins.Base, def.Pins.Base)
		cfg.Pins.Base = def.Pins.Base
	}
	if cfg.Watchdog.Interval.Duration <= 0 {
		cfg.Watchdog.Interval = def.Watchdog.Interval
	}
}

func (cfg *Config) hdmiConfig() hdmi.Config {
	return hdmi.Config{
		BasePin:     cfg.Pins.Base,
		Layout:      tmds.PinLayout{Order: cfg.Pins.Order, Invert: cfg.Pins.Invert},
		BlinkFrames: cfg.Video.BlinkFrames,
	}
}

const DefaultFileMode = os.FileMode(0755)

var ConfigDir = sync.OnceValue(func() string {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		log.ModEmu.Fatalf("failed to get user config directory: %v", err)
	}

	dir := filepath.Join(cfgdir, "picohdmi")
	if err := os.MkdirAll(dir, DefaultFileMode); err != nil {
		log.ModEmu.Fatalf("failed to create directory %s: %v", dir, err)
	}
	return dir
})

const cfgFilename = "config.toml"

// DefaultConfigPath is the config file in the picohdmi config directory.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), cfgFilename)
}

// LoadConfig reads the configuration at path. Missing keys keep their default
// value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.ModEmu.WarnZ("Unknown config key").String("key", key.String()).String("file", path).End()
	}
	cfg.Check()
	return cfg, nil
}

// LoadConfigOrDefault loads the configuration at path, or provide a default
// one.
func LoadConfigOrDefault(path string) Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.ModEmu.WarnZ("Using default config").Error("err", err).End()
		}
		return DefaultConfig()
	}
	return cfg
}

// SaveConfig writes cfg at path.
func SaveConfig(cfg Config, path string) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}
