// main.go: nebula command line entry point.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/agilira/nebula/internal/config"
)

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	stdout io.Writer
}

type command struct {
	summary string
	run     func(a *app, args []string) error
}

var commands = map[string]command{
	"encrypt":  {"Encrypt a file into a framed nebula stream", runEncrypt},
	"decrypt":  {"Decrypt a framed nebula stream", runDecrypt},
	"derive":   {"Print a hex encoded KDF output", runDerive},
	"selftest": {"Run entropy pool health checks", runSelfTest},
	"keygen":   {"Write a random key file drawn from the entropy pool", runKeygen},
}

func usage(flags *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "Usage: nebula [options] <command> [command options]\n\nOptions:\n")
	flags.SetOutput(w)
	flags.PrintDefaults()

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("nebula", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(stderr)

	configPath := flags.StringP("config", "c", "", "YAML configuration file (default $"+config.PathEnv+")")
	envFile := flags.String("env-file", ".env", "Environment file loaded before configuration")
	verbose := flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.Usage = func() { usage(flags, stderr) }

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot load %s: %w", *envFile, err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	rest := flags.Args()
	if len(rest) == 0 {
		usage(flags, stderr)
		return errors.New("missing command")
	}

	cmd, ok := commands[strings.ToLower(rest[0])]
	if !ok {
		usage(flags, stderr)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	a := &app{cfg: cfg, log: logger, stdout: stdout}
	return cmd.run(a, rest[1:])
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "nebula:", err)
		os.Exit(1)
	}
}
