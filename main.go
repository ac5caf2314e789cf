package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/jkcoxson/jitstreamer-pair/config"
	"github.com/jkcoxson/jitstreamer-pair/ios"
	"github.com/jkcoxson/jitstreamer-pair/jitstreamer"
	"github.com/jkcoxson/jitstreamer-pair/netmuxd"
	"github.com/jkcoxson/jitstreamer-pair/pairing"
	log "github.com/sirupsen/logrus"
)

const version = "0.1.2"

const usage = `jitstreamer-pair ` + version + `

Usage:
  jitstreamer-pair [pair] [options]
  jitstreamer-pair connect <udid> [--ip=<ip>] [options]
  jitstreamer-pair unregister <udid> [options]

Options:
  -t, --target=<url>  JitStreamer server to send the pair record to (default https://jitstreamer.com).
  -h, --help          Show this screen.
  -a, --about         Print information about this program.
  -v, --version       Print the version.
  --udid=<udid>       UDID of the device to pair, the first USB device is used otherwise.
  --ip=<ip>           Address of the device, discovered over mDNS when omitted.
  --config=<file>     YAML config file.
  --debug             Enable debug logging.
  --trace             Enable trace logging.
  --json              Log in JSON format.

The commands work as following:
   jitstreamer-pair [pair]                Pairs the USB connected device and uploads the pair record to the target.
   jitstreamer-pair connect <udid>        Registers a network device with netmuxd and waits until it is listed.
   jitstreamer-pair unregister <udid>     Removes a network device from netmuxd.
`

// discoveryTimeout bounds the mDNS lookup of connect.
const discoveryTimeout = 10 * time.Second

type command int

const (
	cmdPair command = iota
	cmdConnect
	cmdUnregister
)

type options struct {
	command    command
	udid       string
	ip         string
	target     string
	configFile string
	help       bool
	about      bool
	version    bool
	debug      bool
	trace      bool
	json       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	opts, err := parseOptions(normalizeArgs(args))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if opts.help {
		fmt.Fprint(stdout, usage)
		return 0
	}
	configureLogging(opts)
	if opts.about {
		fmt.Fprintln(stdout, "Pair program for JitStreamer")
		fmt.Fprintln(stdout, "Written by Jackson Coxson")
	}
	if opts.version {
		fmt.Fprintf(stdout, "Pair version %s\n", version)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.WithField("err", err).Error("failed loading config")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch opts.command {
	case cmdConnect:
		err = connectDevice(ctx, cfg, opts)
	case cmdUnregister:
		err = newMuxerClient(cfg).Unregister(ctx, opts.udid)
	default:
		fmt.Fprintf(stdout, "Pairing with %s, specify a different target if necessary. Pass -h for more info.\n", cfg.Target)
		err = pairDevice(ctx, cfg, opts, stdin, stdout)
	}
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted")
		return 130
	}
	if err != nil {
		log.WithField("err", err).Error("failed")
		return 1
	}
	return 0
}

// loadConfig layers the command line over env, config file and defaults.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	if opts.target != "" {
		cfg.Target = opts.target
	}
	if cfg.Usbmuxd != "" {
		ios.SetUsbmuxdSocket(cfg.Usbmuxd)
	}
	return cfg, nil
}

// parseOptions parses the command line without exiting or printing on bad input.
func parseOptions(argv []string) (options, error) {
	parser := &docopt.Parser{HelpHandler: docopt.NoHelpHandler, SkipHelpFlags: true}
	if argv == nil {
		argv = []string{}
	}
	arguments, err := parser.ParseArgs(usage, argv, "")
	if err != nil {
		return options{}, err
	}
	var opts options
	if b, _ := arguments.Bool("connect"); b {
		opts.command = cmdConnect
	}
	if b, _ := arguments.Bool("unregister"); b {
		opts.command = cmdUnregister
	}
	if opts.command != cmdPair {
		opts.udid, _ = arguments.String("<udid>")
	} else {
		opts.udid, _ = arguments.String("--udid")
	}
	opts.ip, _ = arguments.String("--ip")
	opts.target, _ = arguments.String("--target")
	opts.configFile, _ = arguments.String("--config")
	opts.help, _ = arguments.Bool("--help")
	opts.about, _ = arguments.Bool("--about")
	opts.version, _ = arguments.Bool("--version")
	opts.debug, _ = arguments.Bool("--debug")
	opts.trace, _ = arguments.Bool("--trace")
	opts.json, _ = arguments.Bool("--json")
	return opts, nil
}

// dashes maps typographic dashes, as inserted by some keyboards and chat apps, to ASCII.
var dashes = strings.NewReplacer("\u2013", "-", "\u2014", "-")

// normalizeArgs turns every en and em dash back into "-". A single leading en or em dash
// before a long name becomes "--".
func normalizeArgs(args []string) []string {
	normalized := make([]string, len(args))
	for i, arg := range args {
		rest := strings.TrimLeft(arg, "-\u2013\u2014")
		prefix := arg[:len(arg)-len(rest)]
		rest = dashes.Replace(rest)
		if prefix == "" {
			normalized[i] = rest
			continue
		}
		typographic := strings.ContainsAny(prefix, "\u2013\u2014")
		count := len([]rune(prefix))
		name, _, _ := strings.Cut(rest, "=")
		if typographic && count == 1 && len([]rune(name)) > 1 {
			count = 2
		}
		normalized[i] = strings.Repeat("-", count) + rest
	}
	return normalized
}

func configureLogging(opts options) {
	if opts.json {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if opts.trace {
		log.Info("Set Trace mode")
		log.SetLevel(log.TraceLevel)
	} else if opts.debug {
		log.Info("Set Debug mode")
		log.SetLevel(log.DebugLevel)
	}
}

func pairDevice(ctx context.Context, cfg *config.Config, opts options, stdin io.Reader, stdout io.Writer) error {
	flow := &pairing.Flow{
		Devices:  pairing.USBMux{},
		Uploader: newUploader(cfg),
		Console:  pairing.NewConsole(stdin, stdout),
		UDID:     opts.udid,
	}
	outcome, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	if outcome == pairing.PasscodeRequired {
		return pairing.ErrNoPasscode
	}
	return nil
}

func newUploader(cfg *config.Config) *jitstreamer.Client {
	return jitstreamer.NewClient(cfg.Target, cfg.HTTP.Timeout)
}

func newMuxerClient(cfg *config.Config) *netmuxd.Client {
	return &netmuxd.Client{
		Address:     cfg.Netmuxd.Address,
		ServiceName: cfg.Netmuxd.ServiceName,
		Policy:      cfg.PollPolicy(),
	}
}

func connectDevice(ctx context.Context, cfg *config.Config, opts options) error {
	client := newMuxerClient(cfg)
	ip := opts.ip
	if ip == "" {
		service, err := discoverDevice(ctx, opts.udid)
		if err != nil {
			return err
		}
		ip = service.Address
		client.ServiceName = service.Name
	}
	found, err := client.Connect(ctx, opts.udid, ip, func(ctx context.Context) ([]string, error) {
		list, err := ios.ListDevices()
		if err != nil {
			return nil, err
		}
		return list.UDIDs(), nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("device %s did not show up in the device list", opts.udid)
	}
	log.WithFields(log.Fields{"udid": opts.udid, "ip": ip}).Info("device connected")
	return nil
}

// discoverDevice looks up the network address of udid using the WiFi MAC in its pair record.
func discoverDevice(ctx context.Context, udid string) (ios.NetworkService, error) {
	record, err := ios.ReadPairRecord(udid)
	if err != nil {
		return ios.NetworkService{}, fmt.Errorf("no --ip given and reading the pair record failed: %w", err)
	}
	if record.WiFiMACAddress == "" {
		return ios.NetworkService{}, fmt.Errorf("pair record of %s has no WiFi address, pass --ip", udid)
	}
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	return ios.FindNetworkService(ctx, record.WiFiMACAddress)
}
