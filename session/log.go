package session

import (
	"github.com/bitvm-labs/bitvmd/bitvmlog"
	"github.com/btcsuite/btclog"
)

var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
	bitvmlog.RegisterSubsystem(bitvmlog.SubsystemSession, UseLogger)
}

// DisableLog disables all library log output.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
