// Package bitvmlog provides the shared btclog backend and subsystem
// registry used by every package's own log.go. It mirrors the
// subsystemLoggers/SetLogLevel(s) wiring lnd's main binary uses to fan a
// single backend out to each package-level logger.
package bitvmlog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Backend is the process-wide log backend. Daemons may redirect it to a
// file via InitBackend before any subsystem logger is registered.
var Backend = btclog.NewBackend(os.Stdout)

// subsystemLoggers maps each two-to-four letter subsystem tag to the
// UseLogger setter of the package that owns it. Packages register
// themselves from their own log.go's init().
var subsystemLoggers = make(map[string]func(btclog.Logger))

// NewLogger returns a fresh logger tagged with subsystem, backed by
// Backend.
func NewLogger(subsystem string) btclog.Logger {
	return Backend.Logger(subsystem)
}

// RegisterSubsystem associates a subsystem tag with the UseLogger function
// of the package that owns it, so SetLogLevel(s) can reach it later.
func RegisterSubsystem(tag string, useLogger func(btclog.Logger)) {
	subsystemLoggers[tag] = useLogger
	useLogger(NewLogger(tag))
}

// SetLogLevel sets the log level of a single registered subsystem.
func SetLogLevel(subsystem string, level string) bool {
	useLogger, ok := subsystemLoggers[subsystem]
	if !ok {
		return false
	}
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return false
	}
	logger := NewLogger(subsystem)
	logger.SetLevel(lvl)
	useLogger(logger)
	return true
}

// SetLogLevels sets the same level on every registered subsystem.
func SetLogLevels(level string) {
	for subsystem := range subsystemLoggers {
		SetLogLevel(subsystem, level)
	}
}

// InitBackend redirects the shared backend to w. Intended to be called once
// at daemon start-up, before any subsystem logger does real work.
func InitBackend(w io.Writer) {
	Backend = btclog.NewBackend(w)
}

// Subsystem tags, one per package capable of logging.
const (
	SubsystemWire        = "WIRE"
	SubsystemGate        = "GATE"
	SubsystemCircuit     = "CIRC"
	SubsystemChainScript = "SCRP"
	SubsystemTxGraph     = "TXGR"
	SubsystemActor       = "ACTR"
	SubsystemWatcher     = "WTCH"
	SubsystemChainClient = "CCLI"
	SubsystemTransport   = "XPRT"
	SubsystemSession     = "SESN"
	SubsystemProverd     = "PRVD"
	SubsystemVerifierd   = "VRFD"
)
