// Command farecast trains, queries and serves the ride fare model.
//
//	farecast generate -n 2000 -out data/trips.csv
//	farecast collect -history histories.json -days 90
//	farecast train -config config.yml
//	farecast predict -distance 10 -transport cab -provider obeer
//	farecast best-time -distance 15
//	farecast importance -plot importance.png
//	farecast serve -config config.yml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"generate", "write a synthetic trip CSV", runGenerate},
	{"collect", "convert a ride history export to CSV", runCollect},
	{"train", "train a bundle and save it to the model store", runTrain},
	{"predict", "predict one fare with the latest bundle", runPredict},
	{"best-time", "find the cheapest hour to book", runBestTime},
	{"importance", "print or plot feature importances", runImportance},
	{"serve", "serve the HTTP API", runServe},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: farecast <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "farecast %s: %v\n", name, err)
			stop()
			os.Exit(1)
		}
		return
	}
	if name == "-h" || name == "help" || name == "--help" {
		usage()
		return
	}
	fmt.Fprintf(os.Stderr, "farecast: unknown command %q\n", name)
	usage()
	os.Exit(2)
}
