// verifierd accepts connections from one or more proverd instances and
// runs the Verifier side of a bisection session against each, fanning
// out one goroutine per counterparty and waiting on all of them at
// shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/bitvm-labs/bitvmd/actor"
	"github.com/bitvm-labs/bitvmd/bitvmlog"
	"github.com/bitvm-labs/bitvmd/chainclient"
	"github.com/bitvm-labs/bitvmd/config"
	"github.com/bitvm-labs/bitvmd/session"
	"github.com/bitvm-labs/bitvmd/transport"
)

func main() {
	app := cli.NewApp()
	app.Name = "verifierd"
	app.Usage = "accept and run the Verifier side of bisection dispute sessions"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "configfile, C"},
		cli.StringFlag{Name: "network", Value: "regtest"},
		cli.StringFlag{Name: "rpchost"},
		cli.StringFlag{Name: "rpcuser"},
		cli.StringFlag{Name: "rpcpass"},
		cli.StringFlag{Name: "listenaddr"},
		cli.StringFlag{Name: "circuitfile"},
		cli.StringFlag{Name: "debuglevel", Value: "info"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "verifierd: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(flagArgs(c))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	bitvmlog.SetLogLevels(cfg.DebugLevel)

	netParams, err := netParamsFor(cfg.Network)
	if err != nil {
		return err
	}

	chain, err := chainclient.New(chainclient.Config{
		Host: cfg.RPCHost, User: cfg.RPCUser, Pass: cfg.RPCPass,
		DisableTLS: true, HTTPPostMode: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to bitcoind: %w", err)
	}
	defer chain.Shutdown()

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

	l, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	log.Infof("listening for provers on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down, waiting for in-flight sessions")
		l.Close()
	}()

	var g errgroup.Group
	for {
		t, err := l.Accept()
		if err != nil {
			log.Infof("accept loop stopped: %v", err)
			break
		}
		g.Go(func() error {
			return serveOne(t, chain, cfg, netParams, sessCfg)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("one or more sessions failed: %w", err)
	}
	return nil
}

func serveOne(t transport.Transport, chain session.ChainClient, cfg *config.Config, netParams *chaincfg.Params, sessCfg session.Config) error {
	defer t.Close()

	a, err := actor.New(netParams)
	if err != nil {
		return fmt.Errorf("creating actor: %w", err)
	}
	log.Infof("new prover connection, verifier address %s", a.Address())

	sess := session.New(session.RoleVerifier, a, t, chain, cfg.CircuitFile, sessCfg)
	if err := sess.Run(); err != nil {
		log.Errorf("session failed in state %s: %v", sess.State(), err)
		return fmt.Errorf("session in state %s: %w", sess.State(), err)
	}
	log.Infof("session resolved: %s", sess.State())
	return nil
}

func flagArgs(c *cli.Context) []string {
	var args []string
	for _, name := range c.FlagNames() {
		if v := c.String(name); v != "" {
			args = append(args, "--"+name, v)
		}
	}
	return args
}
