// Package config defines the protocol and daemon configuration shared by
// proverd and verifierd, parsed from flags and an optional config file in
// the style of jessevdk/go-flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"

	"github.com/bitvm-labs/bitvmd/txgraph"
)

const (
	defaultConfigFilename = "bitvmd.conf"
	defaultRPCHost        = "localhost:18443"
	defaultListenAddr     = "localhost:9000"
	defaultBisectionLen   = 10
	defaultTimelockBlocks = 10
	defaultFundingAmount  = 100_000
	defaultWatchInterval  = "1s"
)

// Config is the full set of parameters a proverd or verifierd process
// needs: where to find its Bitcoin node, where to listen for or dial its
// counterparty, and the protocol constants both sides must agree on
// out-of-band before a session starts.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	Network string `long:"network" description:"Bitcoin network to operate on" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet" default:"regtest"`

	RPCHost string `long:"rpchost" description:"bitcoind RPC host:port"`
	RPCUser string `long:"rpcuser" description:"bitcoind RPC username"`
	RPCPass string `long:"rpcpass" description:"bitcoind RPC password"`

	ListenAddr string `long:"listenaddr" description:"address to listen on for a counterparty connection (verifierd)"`
	PeerAddr   string `long:"peeraddr" description:"websocket URL of the counterparty to dial (proverd)"`

	CircuitFile string `long:"circuitfile" description:"path to the Bristol circuit file describing the program being proven"`

	FundingAmountSat int64 `long:"fundingamount" description:"satoshis to lock into the funding output"`
	FeeSat           int64 `long:"fee" description:"satoshis paid per ladder transaction"`
	DustSat          int64 `long:"dust" description:"dust limit in satoshis for the primary output of each rung"`
	BisectionLength  int   `long:"bisectionlen" description:"maximum number of bisection rungs before falling back to timelock"`
	TimelockBlocks   uint32 `long:"timelockblocks" description:"relative CSV delay, in blocks, for every timelock fallback leaf"`
	WatchInterval    string `long:"watchinterval" description:"polling interval for the chain watcher, a Go duration string"`

	DebugLevel string `long:"debuglevel" description:"logging level applied to every subsystem; <subsystem>=<level> pairs are not parsed"`
}

// DefaultConfig returns the baseline configuration used when a flag and
// its config-file counterpart are both absent.
func DefaultConfig() *Config {
	return &Config{
		Network:          "regtest",
		RPCHost:          defaultRPCHost,
		ListenAddr:       defaultListenAddr,
		FundingAmountSat: defaultFundingAmount,
		FeeSat:           txgraph.DefaultParams.FeeSat,
		DustSat:          txgraph.DefaultParams.DustSat,
		BisectionLength:  defaultBisectionLen,
		TimelockBlocks:   defaultTimelockBlocks,
		WatchInterval:    defaultWatchInterval,
		DebugLevel:       "info",
	}
}

// Load parses command-line arguments over the defaults, reading a config
// file first if one is present, matching the two-pass flags-then-file
// precedence the daemon's tooling expects.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	preCfg := *cfg
	if _, err := flags.NewParser(&preCfg, flags.HelpFlag|flags.PassDoubleDash).ParseArgs(args); err != nil {
		return nil, err
	}

	configFile := preCfg.ConfigFile
	if configFile == "" {
		configFile = filepath.Join(defaultConfigDir(), defaultConfigFilename)
	}
	if _, err := os.Stat(configFile); err == nil {
		fileParser := flags.NewParser(cfg, flags.Default)
		if err := flags.NewIniParser(fileParser).ParseFile(configFile); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configFile, err)
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DustSat <= 0 || c.FeeSat <= 0 {
		return fmt.Errorf("config: fee and dust must be positive")
	}
	if c.BisectionLength <= 0 {
		return fmt.Errorf("config: bisectionlen must be positive")
	}
	if c.FundingAmountSat <= int64(c.BisectionLength)*2*(c.FeeSat+c.DustSat) {
		return fmt.Errorf("config: funding amount too small for %d bisection rungs at fee=%d dust=%d",
			c.BisectionLength, c.FeeSat, c.DustSat)
	}
	return nil
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".bitvmd")
}

// LadderParams extracts the txgraph.Params this config implies.
func (c *Config) LadderParams() txgraph.Params {
	return txgraph.Params{FeeSat: c.FeeSat, DustSat: c.DustSat}
}
