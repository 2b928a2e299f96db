package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"picohdmi/emu/log"
)

type mode byte

const (
	runMode        mode = iota // Run the video pipeline
	snapshotMode               // Capture frames as images
	modesMode                  // List display modes
	saveConfigMode             // Write the configuration file
	versionMode                // Show picohdmi version
)

type (
	CLI struct {
		Run        Run        `cmd:"" help:"Run the video pipeline and report on the received signal." default:"withargs"`
		Snapshot   Snapshot   `cmd:"" help:"Capture frames received by the monitor as images."`
		Modes      Modes      `cmd:"" help:"List display modes."`
		SaveConfig SaveConfig `cmd:"" help:"Write the configuration file, filling in defaults." name:"save-config"`
		Version    Version    `cmd:"" help:"Show picohdmi version."`

		Log    logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`
		Config string     `help:"${config_help}" type:"path" placeholder:"FILE"`

		mode mode
	}

	Run struct {
		Mode       string   `name:"mode" help:"Display mode, overrides the configuration." placeholder:"MODE"`
		Frames     int      `name:"frames" help:"Number of frames to run, 0 runs until interrupted." default:"60"`
		Script     string   `name:"script" help:"${script_help}" type:"existingfile"`
		Report     *outfile `name:"report" help:"Write a JSON report." placeholder:"FILE|stdout|stderr"`
		PNG        string   `name:"png" help:"Save the last received frame as PNG." type:"path"`
		CPUProfile string   `name:"cpuprofile" help:"Write CPU profile to file." type:"path"`
		Port       int      `name:"port" help:"Serve remote control requests on this TCP port."`
		StatsView  string   `name:"statsview" help:"Serve live runtime charts at this address." placeholder:"HOST:PORT"`
	}

	Snapshot struct {
		Out    string   `name:"out" help:"Output directory." type:"path" default:"."`
		Modes  []string `name:"mode" help:"Display modes to capture (default: the configured one)." placeholder:"MODE,..."`
		All    bool     `name:"all-modes" help:"Capture every display mode."`
		Format string   `name:"format" help:"Image format." enum:"png,bmp" default:"png"`
		Script string   `name:"script" help:"${script_help}" type:"existingfile"`
	}

	Modes      struct{}
	SaveConfig struct{}
	Version    struct{}
)

var vars = kong.Vars{
	"log_help":    "Enable logging for specified modules.",
	"config_help": "Configuration file (default: picohdmi/config.toml in the user config directory).",
	"script_help": "Lua script driving the machine, run before the first frame.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("picohdmi"),
		kong.Description("DVI video output emulator for the RP2040."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch ctx.Command() {
	case "snapshot":
		cfg.mode = snapshotMode
	case "modes":
		cfg.mode = modesMode
	case "save-config":
		cfg.mode = saveConfigMode
	case "version":
		cfg.mode = versionMode
	default:
		cfg.mode = runMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if strings.HasPrefix(ctx.Command(), "run") || strings.HasPrefix(ctx.Command(), "snapshot") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return fmt.Errorf("unknown log module %s", v)
			}
			lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return fmt.Errorf("cannot use 'all' and 'no' together")
		}
		if lm != 0 {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(lm))
	return nil
}

type outfile struct {
	w     io.Writer
	name  string
	close func() error
}

// Decode decodes FILE|stdout|stderr into an io.WriteCloser
// that writes to that file.
//
// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	tok := ctx.Scan.Pop()
	f.name = tok.Value.(string)
	f.close = func() error { return nil }

	switch f.name {
	case "stdout":
		f.w = os.Stdout
	case "stderr":
		f.w = os.Stderr
	default:
		fd, err := os.Create(f.name)
		if err != nil {
			return err
		}
		f.w = fd
		f.close = fd.Close
	}
	return nil
}

func (f *outfile) String() string              { return f.name }
func (f *outfile) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f *outfile) Close() error                { return f.close() }

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
