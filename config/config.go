// Package config loads wl12xx core configuration from TOML files.
//
// Settings are layered: built-in defaults, then the config file, then
// environment overrides of the form WLCTL_LOG_LEVEL.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/soypat/wl12xx"
	"github.com/soypat/wl12xx/mbox"
	"github.com/soypat/wl12xx/txdata"
)

const (
	configName = "wlctl"
	configType = "toml"
	envPrefix  = "WLCTL"
	configDir  = "wlctl"
)

var errUnknownAC = errors.New("config: unknown access category")

// File is the on-disk configuration schema.
type File struct {
	Log    Log    `toml:"log" mapstructure:"log"`
	Tx     Tx     `toml:"tx" mapstructure:"tx"`
	Events Events `toml:"events" mapstructure:"events"`
	MQTT   MQTT   `toml:"mqtt" mapstructure:"mqtt"`
	Conns  []Conn `toml:"conn" mapstructure:"conn"`
}

type Log struct {
	// Level is one of trace, debug, info, warn or error.
	Level string `toml:"level" mapstructure:"level"`
}

type Tx struct {
	MaxTotal      uint32 `toml:"max_total" mapstructure:"max_total"`
	MaxLinks      int    `toml:"max_links" mapstructure:"max_links"`
	MinLink       uint32 `toml:"min_link" mapstructure:"min_link"`
	SystemLink    uint8  `toml:"system_link" mapstructure:"system_link"`
	PaceTimeoutMS int    `toml:"pace_timeout_ms" mapstructure:"pace_timeout_ms"`
	Descriptors   int    `toml:"descriptors" mapstructure:"descriptors"`
	// AC holds the per access category budgets keyed by BE, BK, VI and VO.
	AC map[string]ACBudget `toml:"ac" mapstructure:"ac"`
}

type ACBudget struct {
	Min      uint32 `toml:"min" mapstructure:"min"`
	Depth    int    `toml:"depth" mapstructure:"depth"`
	LowWater int    `toml:"low_water" mapstructure:"low_water"`
	Pace     int    `toml:"pace" mapstructure:"pace"`
}

type Events struct {
	// Enabled lists the event names unmasked in the firmware.
	Enabled       []string `toml:"enabled" mapstructure:"enabled"`
	ConsBcnLossMS int      `toml:"cons_bcn_loss_ms" mapstructure:"cons_bcn_loss_ms"`
	MaxBcnLossMS  int      `toml:"max_bcn_loss_ms" mapstructure:"max_bcn_loss_ms"`
	MaxTxRetries  int      `toml:"max_tx_retries" mapstructure:"max_tx_retries"`
	LogWakes      int      `toml:"log_wakes" mapstructure:"log_wakes"`
}

type MQTT struct {
	// Broker is the host:port of the broker. Empty disables publishing.
	Broker      string `toml:"broker" mapstructure:"broker"`
	TopicPrefix string `toml:"topic_prefix" mapstructure:"topic_prefix"`
	ClientID    string `toml:"client_id" mapstructure:"client_id"`
}

// Conn is a connection context created at startup.
type Conn struct {
	Role          uint8  `toml:"role" mapstructure:"role"`
	Mode          string `toml:"mode" mapstructure:"mode"`
	Link          uint8  `toml:"link" mapstructure:"link"`
	BSSID         string `toml:"bssid,omitempty" mapstructure:"bssid"`
	P2P           bool   `toml:"p2p,omitempty" mapstructure:"p2p"`
	Encrypt       bool   `toml:"encrypt,omitempty" mapstructure:"encrypt"`
	RSSIThreshold int8   `toml:"rssi_threshold,omitempty" mapstructure:"rssi_threshold"`
	Peers         []Peer `toml:"peer,omitempty" mapstructure:"peer"`
}

type Peer struct {
	Link    uint8  `toml:"link" mapstructure:"link"`
	Addr    string `toml:"addr" mapstructure:"addr"`
	Encrypt bool   `toml:"encrypt,omitempty" mapstructure:"encrypt"`
}

// Default returns the configuration matching [wl12xx.DefaultConfig].
func Default() File {
	cfg := wl12xx.DefaultConfig()
	f := File{
		Log: Log{Level: "info"},
		Tx: Tx{
			MaxTotal:      cfg.MaxTotal,
			MaxLinks:      cfg.MaxLinks,
			MinLink:       cfg.MinLink,
			SystemLink:    cfg.SystemLink,
			PaceTimeoutMS: int(cfg.PaceTimeout / time.Millisecond),
			Descriptors:   cfg.TxDescriptors,
			AC:            make(map[string]ACBudget),
		},
		Events: Events{
			ConsBcnLossMS: int(cfg.ConsBcnLossTime / time.Millisecond),
			MaxBcnLossMS:  int(cfg.MaxBcnLossTime / time.Millisecond),
			MaxTxRetries:  cfg.MaxTxRetries,
			LogWakes:      cfg.LogWakes,
		},
		MQTT: MQTT{TopicPrefix: "wl12xx"},
	}
	for ac := txdata.AC(0); ac < txdata.NumAC; ac++ {
		f.Tx.AC[ac.String()] = ACBudget{
			Min:      cfg.MinAC[ac],
			Depth:    cfg.Depth[ac],
			LowWater: cfg.LowWater[ac],
			Pace:     cfg.PaceThreshold[ac],
		}
	}
	for k := mbox.Kind(0); int(k) < mbox.NumKinds; k++ {
		if cfg.Events.IsEnabled(k) {
			f.Events.Enabled = append(f.Events.Enabled, k.String())
		}
	}
	return f
}

// Load reads the configuration file at path over the defaults. An empty path
// searches for wlctl.toml in the working directory and the user config
// directory; finding no file there is not an error.
func Load(path string) (File, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (File, error) {
	defaults, err := Marshal(Default())
	if err != nil {
		return File{}, err
	}
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return File{}, fmt.Errorf("config: read defaults: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configDir))
		}
	}
	err = v.MergeInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return File{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return File{}, fmt.Errorf("config: decode: %w", err)
	}
	return f, nil
}

// Marshal encodes f as TOML.
func Marshal(f File) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Level returns the configured log level.
func (f File) Level() (slog.Level, error) {
	return ParseLevel(f.Log.Level)
}

// ParseLevel parses a slog level name. "trace" is one step below debug.
func ParseLevel(s string) (slog.Level, error) {
	if strings.EqualFold(s, "trace") {
		return slog.LevelDebug - 1, nil
	}
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(s))
	return lvl, err
}

// Core converts the file into a core configuration and the connection
// contexts to create. Collaborators such as the notifier are left unset.
func (f File) Core() (wl12xx.Config, []wl12xx.ConnConfig, error) {
	cfg := wl12xx.DefaultConfig()
	cfg.MaxTotal = f.Tx.MaxTotal
	cfg.MaxLinks = f.Tx.MaxLinks
	cfg.MinLink = f.Tx.MinLink
	cfg.SystemLink = f.Tx.SystemLink
	cfg.PaceTimeout = time.Duration(f.Tx.PaceTimeoutMS) * time.Millisecond
	cfg.TxDescriptors = f.Tx.Descriptors
	for name, b := range f.Tx.AC {
		ac, ok := txdata.ParseAC(strings.ToUpper(name))
		if !ok {
			return cfg, nil, fmt.Errorf("%w %q", errUnknownAC, name)
		}
		cfg.MinAC[ac] = b.Min
		cfg.Depth[ac] = b.Depth
		cfg.LowWater[ac] = b.LowWater
		cfg.PaceThreshold[ac] = b.Pace
	}
	cfg.ConsBcnLossTime = time.Duration(f.Events.ConsBcnLossMS) * time.Millisecond
	cfg.MaxBcnLossTime = time.Duration(f.Events.MaxBcnLossMS) * time.Millisecond
	cfg.MaxTxRetries = f.Events.MaxTxRetries
	cfg.LogWakes = f.Events.LogWakes
	cfg.Events = 0
	for _, name := range f.Events.Enabled {
		k, ok := mbox.ParseKind(strings.ToUpper(name))
		if !ok {
			return cfg, nil, fmt.Errorf("config: unknown event %q", name)
		}
		cfg.Events.Enable(k)
	}

	conns := make([]wl12xx.ConnConfig, 0, len(f.Conns))
	for i, c := range f.Conns {
		cc := wl12xx.ConnConfig{
			Role:          c.Role,
			Link:          c.Link,
			P2P:           c.P2P,
			Encrypt:       c.Encrypt,
			RSSIThreshold: c.RSSIThreshold,
		}
		switch strings.ToLower(c.Mode) {
		case "", "sta", "station":
			cc.Mode = wl12xx.ModeStation
		case "ap":
			cc.Mode = wl12xx.ModeAP
		default:
			return cfg, nil, fmt.Errorf("config: conn %d: unknown mode %q", i, c.Mode)
		}
		if c.BSSID != "" {
			mac, err := parseMAC(c.BSSID)
			if err != nil {
				return cfg, nil, fmt.Errorf("config: conn %d: %w", i, err)
			}
			cc.BSSID = mac
		}
		conns = append(conns, cc)
	}
	return cfg, conns, nil
}

// PeerConfig is an access point peer to register after its connection is created.
type PeerConfig struct {
	Role    uint8
	Link    uint8
	Addr    wl12xx.MAC
	Encrypt bool
}

// Peers returns the peers of every access point connection.
func (f File) Peers() ([]PeerConfig, error) {
	var peers []PeerConfig
	for _, c := range f.Conns {
		for _, p := range c.Peers {
			mac, err := parseMAC(p.Addr)
			if err != nil {
				return nil, fmt.Errorf("config: peer of role %d: %w", c.Role, err)
			}
			peers = append(peers, PeerConfig{Role: c.Role, Link: p.Link, Addr: mac, Encrypt: p.Encrypt})
		}
	}
	return peers, nil
}

func parseMAC(s string) (mac wl12xx.MAC, err error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return mac, err
	}
	if len(hw) != len(mac) {
		return mac, fmt.Errorf("address %q is not EUI-48", s)
	}
	copy(mac[:], hw)
	return mac, nil
}
