package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/drunlade/go-ymodem/ymodem"
	"golang.org/x/term"
)

var (
	baud      = flag.Int("b", 115200, "baud rate")
	timeout   = flag.Duration("t", ymodem.DefaultTimeout, "response timeout")
	handshake = flag.Duration("handshake", ymodem.DefaultHandshakeTimeout, "timeout for the receiver to accept the header")
	retries   = flag.Int("r", ymodem.DefaultMaxRetries, "NAK resends per block (0 = unlimited)")
	verbose   = flag.Bool("v", false, "verbose mode")
	quiet     = flag.Bool("q", false, "quiet mode")
	logFile   = flag.String("log", "", "protocol log file (JSON, debug level)")
	help      = flag.Bool("h", false, "show help")
	version   = flag.Bool("version", false, "show version")
)

const versionString = "gsy version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "%s: expected <port> <file>\n", os.Args[0])
		showUsage(1)
	}
	portName, filename := args[0], args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, portName, filename)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, portName, filename string) int {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	var logger ymodem.Logger = ymodem.NewSlogLogger(os.Stderr, level, true)
	if *quiet {
		logger = ymodem.NoopLogger{}
	}
	if *logFile != "" {
		fl, err := ymodem.NewFileLogger(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			return 1
		}
		defer fl.Close()
		logger = fl
	}

	ch, err := ymodem.OpenSerial(portName, *baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer ch.Close()

	config := ymodem.DefaultConfig()
	config.Timeout = *timeout
	config.HandshakeTimeout = *handshake
	config.MaxRetries = *retries
	config.LogTraffic = *logFile != ""

	session := ymodem.NewSession(ch,
		ymodem.WithConfig(config),
		ymodem.WithCallbacks(consoleCallbacks()),
		ymodem.WithLogger(logger),
		ymodem.WithContext(ctx),
	)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Sending %s on %s at %d baud, waiting for receiver...\n", filename, portName, *baud)
	}
	if _, err := session.SendFile(ctx, filename); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}
		return 1
	}
	return 0
}

// consoleCallbacks renders progress on stderr: a redrawn bar on a
// terminal, one line per update otherwise.
func consoleCallbacks() *ymodem.Callbacks {
	if *quiet {
		return nil
	}

	fd := int(os.Stderr.Fd())
	isTTY := term.IsTerminal(fd)

	return &ymodem.Callbacks{
		OnFileStart: func(filename string, size int64, blocks int64) {
			fmt.Fprintf(os.Stderr, "Header: %s (%d bytes, %d blocks)\n", filename, size, blocks)
		},
		OnProgress: func(filename string, transferred, total int64, rate float64) {
			percent := float64(100)
			if total > 0 {
				percent = float64(transferred) / float64(total) * 100
			}
			if !isTTY {
				fmt.Fprintf(os.Stderr, "%s: %.1f%% (%.0f bytes/s)\n", filename, percent, rate)
				return
			}
			width, _, err := term.GetSize(fd)
			if err != nil || width < 40 {
				width = 80
			}
			barWidth := width - 30
			filled := int(percent / 100 * float64(barWidth))
			fmt.Fprintf(os.Stderr, "\r[%s%s] %5.1f%% %8.0f B/s",
				strings.Repeat("=", filled), strings.Repeat(" ", barWidth-filled), percent, rate)
		},
		OnFileComplete: func(filename string, bytesTransferred int64, duration time.Duration) {
			fmt.Fprintf(os.Stderr, "\nCompleted: %s (%d bytes in %v)\n",
				filename, bytesTransferred, duration.Round(time.Millisecond))
		},
	}
}

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - send a file with the YMODEM protocol

Usage: %s [options] <port> <file>

Options:
  -b N             baud rate (default: 115200)
  -t D             response timeout (default: 3s)
  -handshake D     timeout for the receiver to accept the header (default: 1m30s)
  -r N             NAK resends per block, 0 = unlimited (default: 10)
  -log FILE        write a JSON protocol log
  -h               show this help message
  -q               quiet mode, minimal output
  -v               verbose mode
  -version         show version

Examples:
  %s /dev/ttyACM0 firmware.bin
  %s -b 921600 -v COM3 firmware.bin

`, versionString, os.Args[0], os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
