// Command taxcount computes US federal capital-gains lots for Bitcoin
// activity spanning exchange ledgers and on-chain wallet history, and
// writes Form 8949 worksheets.
//
// Usage:
//
//	taxcount [-config <dir>] run
package main

import (
	"flag"

	"src.d10.dev/command"
)

func main() {
	command.RegisterCommand(
		"taxcount",
		"taxcount [-config <dir>] <operation>",
		"Compute FIFO capital-gains lots from exchange ledgers and on-chain wallet history.",
		command.OptionConfig, command.OptionVerbose,
	)

	command.CheckUsage(command.Parse())

	op := "run"
	if args := flag.Args(); len(args) > 0 {
		op = args[0]
	}

	command.Operate(op)
	command.Exit()
}
