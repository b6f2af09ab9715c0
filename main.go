package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/repeater/cmd"
	"grimm.is/repeater/internal/brand"
	"grimm.is/repeater/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		startFlags := flag.NewFlagSet("start", flag.ExitOnError)
		configFile := startFlags.String("config", brand.GetConfigPath(), "Configuration file")
		startFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		foreground := startFlags.Bool("foreground", false, "Run in foreground (don't daemonize)")
		startFlags.BoolVar(foreground, "f", false, "Run in foreground (short)")
		startFlags.Parse(os.Args[2:])

		if *foreground {
			fail("Start failed: ", cmd.RunCtl(*configFile))
		} else {
			fail("Start failed: ", cmd.RunStart(*configFile))
		}

	case "stop":
		fail("Stop failed: ", cmd.RunStop())

	case "ctl":
		// Daemon process, spawned by start
		ctlFlags := flag.NewFlagSet("ctl", flag.ExitOnError)
		ctlFlags.Parse(os.Args[2:])

		configFile := brand.GetConfigPath()
		if len(ctlFlags.Args()) > 0 {
			configFile = ctlFlags.Arg(0)
		}
		fail("Daemon failed: ", cmd.RunCtl(configFile))

	case "reload":
		reloadFlags := flag.NewFlagSet("reload", flag.ExitOnError)
		configFile := reloadFlags.String("config", brand.GetConfigPath(), "Configuration file")
		reloadFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		reloadFlags.Parse(os.Args[2:])

		fail("Reload failed: ", cmd.RunReload(*configFile))

	case "status":
		asJSON := jsonFlag("status")
		fail("", cmd.RunStatus(*asJSON))

	case "up":
		fail("Up failed: ", cmd.RunUp())

	case "down":
		fail("Down failed: ", cmd.RunDown())

	case "scan":
		asJSON := jsonFlag("scan")
		fail("", cmd.RunScan(*asJSON))

	case "clients":
		asJSON := jsonFlag("clients")
		fail("", cmd.RunClients(*asJSON))

	case "history":
		historyFlags := flag.NewFlagSet("history", flag.ExitOnError)
		limit := historyFlags.Int("n", 20, "Number of transitions to show (0 for all)")
		asJSON := historyFlags.Bool("json", false, "Output JSON")
		historyFlags.Parse(os.Args[2:])

		fail("", cmd.RunHistory(*limit, *asJSON))

	case "radios":
		asJSON := jsonFlag("radios")
		fail("", cmd.RunRadios(*asJSON))

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Verbose output")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.GetConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}
		fail("Check failed: ", cmd.RunCheck(configFile, *verbose))

	case "init":
		initFlags := flag.NewFlagSet("init", flag.ExitOnError)
		configFile := initFlags.String("config", brand.GetConfigPath(), "Configuration file to write")
		initFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		radioName := initFlags.String("radio", "", "Physical radio interface (empty to autodetect)")
		force := initFlags.Bool("force", false, "Overwrite an existing file")
		initFlags.Parse(os.Args[2:])

		fail("Init failed: ", cmd.RunInit(*configFile, *radioName, *force))

	case "version", "-v", "--version":
		printer.Printf("%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// fail prints err with prefix and exits non-zero. A nil err is a no-op.
func fail(prefix string, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, cmd.ErrReported) {
		printer.Fprintf(os.Stderr, "%s%v\n", prefix, err)
	}
	os.Exit(1)
}

// jsonFlag parses a subcommand whose only option is --json.
func jsonFlag(name string) *bool {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Output JSON")
	fs.Parse(os.Args[2:])
	return asJSON
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Daemon Commands:
  start     Start the daemon
            Options: --foreground (-f), --config (-c) <file>
  stop      Stop the daemon and tear down the extender
  reload    Validate the config file and apply it to the running daemon
            Options: --config (-c) <file>

Extender Commands:
  status    Show extender state and layer health
            Options: --json
  up        Bring the extender up
  down      Take the extender down, leaving the daemon running
  scan      List upstream networks in range
            Options: --json
  clients   List hotspot clients, connected and recently seen
            Options: --json
  history   Show recent lifecycle transitions
            Options: -n <count>, --json

Utility Commands:
  check     Validate configuration file
            Options: --verbose (-v)
  init      Write a starter configuration
            Options: --config (-c) <file>, --radio <iface>, --force
  radios    List wireless interfaces and their capabilities
            Options: --json
  version   Print version information

Examples:
  %s init --radio wlan0             # Write %s
  %s check -v                       # Preview hotspot and bridge setup
  %s start                          # Start in background
  %s status                         # Show extender health
`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.GetConfigPath(),
		brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
