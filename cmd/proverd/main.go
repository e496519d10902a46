// proverd drives the Prover side of a single bisection session: it dials
// a verifierd instance, funds its own address from the configured
// bitcoind wallet, and runs the protocol to resolution.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/bitvmlog"
	"github.com/bitvm-labs/bitvmd/chainclient"
	"github.com/bitvm-labs/bitvmd/config"
	"github.com/bitvm-labs/bitvmd/session"
	"github.com/bitvm-labs/bitvmd/transport"
)

func main() {
	app := cli.NewApp()
	app.Name = "proverd"
	app.Usage = "run the Prover side of a bisection dispute session"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "configfile, C"},
		cli.StringFlag{Name: "network", Value: "regtest"},
		cli.StringFlag{Name: "rpchost"},
		cli.StringFlag{Name: "rpcuser"},
		cli.StringFlag{Name: "rpcpass"},
		cli.StringFlag{Name: "peeraddr", Usage: "websocket URL of the verifierd to dial"},
		cli.StringFlag{Name: "circuitfile"},
		cli.StringFlag{Name: "inputs", Usage: "path to a file of 0/1 lines, the Prover's private witness"},
		cli.Int64Flag{Name: "fundingamount"},
		cli.StringFlag{Name: "debuglevel", Value: "info"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "proverd: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(flagArgs(c))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.PeerAddr == "" {
		return fmt.Errorf("proverd: --peeraddr is required")
	}

	bitvmlog.SetLogLevels(cfg.DebugLevel)

	netParams, err := netParamsFor(cfg.Network)
	if err != nil {
		return err
	}

	a, err := actor.New(netParams)
	if err != nil {
		return fmt.Errorf("creating actor: %w", err)
	}
	log.Infof("prover address: %s", a.Address())

	chain, err := chainclient.New(chainclient.Config{
		Host: cfg.RPCHost, User: cfg.RPCUser, Pass: cfg.RPCPass,
		DisableTLS: true, HTTPPostMode: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to bitcoind: %w", err)
	}
	defer chain.Shutdown()

	t, err := transport.Dial(cfg.PeerAddr)
	if err != nil {
		return fmt.Errorf("dialing verifier at %s: %w", cfg.PeerAddr, err)
	}
	defer t.Close()

	watchInterval, err := time.ParseDuration(cfg.WatchInterval)
	if err != nil {
		return fmt.Errorf("parsing watchinterval: %w", err)
	}

	sessCfg := session.Config{
		Net:             netParams,
		FundingAmount:   cfg.FundingAmountSat,
		Params:          cfg.LadderParams(),
		BisectionLength: cfg.BisectionLength,
		TimelockBlocks:  cfg.TimelockBlocks,
		WatchInterval:   watchInterval,
	}

	sess := session.New(session.RoleProver, a, t, chain, cfg.CircuitFile, sessCfg)

	if inputsPath := c.String("inputs"); inputsPath != "" {
		inputs, err := readInputs(inputsPath)
		if err != nil {
			return fmt.Errorf("reading inputs: %w", err)
		}
		sess.Inputs = inputs
	}

	if err := sess.Run(); err != nil {
		return fmt.Errorf("session failed in state %s: %w", sess.State(), err)
	}
	log.Infof("session resolved: %s", sess.State())
	return nil
}

// readInputs parses one Bristol-style bit per line, grouped by blank
// lines into per-party slices matching circuit.Circuit.Evaluate's
// expected [][]bool shape.
func readInputs(path string) ([][]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parties [][]bool
	var cur []bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if len(cur) > 0 {
				parties = append(parties, cur)
				cur = nil
			}
			continue
		}
		bit, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parsing bit %q: %w", line, err)
		}
		cur = append(cur, bit != 0)
	}
	if len(cur) > 0 {
		parties = append(parties, cur)
	}
	return parties, scanner.Err()
}

func flagArgs(c *cli.Context) []string {
	var args []string
	for _, name := range c.FlagNames() {
		if v := c.String(name); v != "" {
			args = append(args, "--"+name, v)
		}
	}
	if c.IsSet("fundingamount") {
		args = append(args, "--fundingamount", strconv.FormatInt(c.Int64("fundingamount"), 10))
	}
	return args
}
