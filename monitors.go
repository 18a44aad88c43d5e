package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/acryldata/datahub-monitors/cli"
)

var version string
var build string

func buildLogger(level string) *logrus.Logger {
	logrus.SetOutput(os.Stdout)
	logrus.SetReportCaller(true)
	forceColors := false
	if term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("TERM") != "dumb" && os.Getenv("NO_COLOR") == "" {
		forceColors = true
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		ForceColors:     forceColors,
		DisableQuote:    true,
		TimestampFormat: "2006-01-02 15:04:05",
		CallerPrettyfier: func(frame *runtime.Frame) (string, string) {
			return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		},
	})
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	return logrus.StandardLogger()
}

func main() {
	// Pre-parse log-level flag to configure the logger early
	var pre struct {
		LogLevel string `long:"log-level" env:"MONITORS_LOG_LEVEL"`
		Debug    bool   `long:"debug" env:"DATAHUB_DEBUG"`
	}
	args := os.Args[1:]
	preParser := flags.NewParser(&pre, flags.IgnoreUnknown)
	_, _ = preParser.ParseArgs(args)
	if pre.LogLevel == "" && pre.Debug {
		pre.LogLevel = "debug"
	}

	logger := cli.NewLogger(buildLogger(pre.LogLevel))
	if version != "" {
		cli.Version = version
	}

	parser := flags.NewNamedParser("datahub-monitors", flags.Default)
	parser.AddCommand(
		"daemon",
		"run the monitor service",
		"",
		&cli.DaemonCommand{Logger: logger, LogLevel: pre.LogLevel},
	)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagErr, ok := err.(*flags.Error); ok {
			if flagErr.Type == flags.ErrHelp {
				return
			}

			parser.WriteHelp(os.Stdout)
			fmt.Printf("\nBuild information\n  commit: %s\n  date:%s\n", version, build)
		}

		os.Exit(1)
	}
}
