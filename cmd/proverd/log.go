package main

import (
	"github.com/btcsuite/btclog"

	"github.com/bitvm-labs/bitvmd/bitvmlog"
)

var log btclog.Logger

func init() {
	log = bitvmlog.NewLogger(bitvmlog.SubsystemProverd)
	bitvmlog.RegisterSubsystem(bitvmlog.SubsystemProverd, func(l btclog.Logger) { log = l })
}
