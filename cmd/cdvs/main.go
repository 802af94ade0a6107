package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"cdvs/internal/coords"
	"cdvs/internal/logger"
	"cdvs/internal/params"
	"cdvs/internal/scfv"
)

type command struct {
	usage string
	run   func(args []string) error
}

var commands = map[string]command{
	"extract":  {"extract [flags] features.json...", runExtract},
	"index":    {"index [flags] descriptor...", runIndex},
	"match":    {"match [flags] query ref", runMatch},
	"retrieve": {"retrieve [flags] query...", runRetrieve},
	"info":     {"info descriptor...", runInfo},
	"train":    {"train [flags] features.json...", runTrain},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cdvs <command> [flags] args")
	for _, name := range []string{"extract", "index", "match", "retrieve", "info", "train"} {
		fmt.Fprintf(os.Stderr, "  cdvs %s\n", commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		logger.Fatal("%s: %v", os.Args[1], err)
	}
}

// common holds the flags shared by every command.
type common struct {
	logLevel   *string
	logFile    *string
	paramsPath *string
	modelPath  *string
	tables     *string
	tablesMode *int
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fset := flag.NewFlagSet(name, flag.ExitOnError)
	return fset, &common{
		logLevel:   fset.String("log-level", "info", "Log level: error, warn, info or debug"),
		logFile:    fset.String("log-file", "", "Also append log output to this file"),
		paramsPath: fset.String("params", "", "JSON file of parameter overrides"),
		modelPath:  fset.String("model", "", "Global signature model file (built-in random model when empty)"),
		tables:     fset.String("ctx", "", "Prefix of trained coordinate coding tables"),
		tablesMode: fset.Int("ctx-mode", 2, "Mode whose decoder uses the -ctx tables"),
	}
}

// setup configures logging and returns a close function for the log file.
func (c *common) setup() (func(), error) {
	lvl, err := logger.ParseLevel(*c.logLevel)
	if err != nil {
		return nil, err
	}
	closer := func() {}
	var w io.Writer = os.Stderr
	if *c.logFile != "" {
		f, err := os.OpenFile(*c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}
	logger.Setup(w)
	logger.SetLevel(lvl)
	return closer, nil
}

func (c *common) parameters() (*params.ParameterSet, error) {
	if *c.paramsPath == "" {
		return params.Default(), nil
	}
	return params.Load(*c.paramsPath)
}

func (c *common) model() (*scfv.Model, error) {
	if *c.modelPath == "" {
		logger.Warn("No model given, using the built-in random model")
		return scfv.RandomModel(1), nil
	}
	return scfv.LoadModel(*c.modelPath)
}

// coordinateTables returns the trained tables, or false when none were given.
func (c *common) coordinateTables() (coords.Tables, bool, error) {
	if *c.tables == "" {
		return coords.Tables{}, false, nil
	}
	t, err := coords.LoadTables(*c.tables)
	return t, err == nil, err
}
