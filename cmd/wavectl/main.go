package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/wavedma/wavedma"
	"github.com/wavedma/wavedma/config"
	"golang.org/x/exp/slog"
	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number. Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = config.FileName
)

func root() {
	str := `wavectl compiles pulse trains into DMA control blocks and plays them on the GPIOs,
alone or sequenced by chain programs, without the CPU touching a pin.

Usage:
	wavectl <command> [arguments]

Commands:
	play [--sim] [--quiet] <program.yml>
	dump [--sim] <program.yml>
	serve [--sim]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `wavectl is configured through wavedma.yml in the working directory and through
WAVEDMA_ environment variables, e.g. WAVEDMA_WAVES_MAXWAVES=100. mkconf writes the
defaults to wavedma.yml.

A program file lists waves and, optionally, a chain that sequences them:

Waves:
  - Name: blink
    Pulses:
      - On: [4]
        Delay: 500
      - Off: [4]
        Delay: 500
Mode: repeat        # oneshot or repeat, plays the first wave when there is no chain
Chain:
  - Op: play        # play, delay, loop, end or forever
    Wave: blink
  - Op: loop
  - Op: play
    Wave: blink
  - Op: end
    Count: 10

play creates the waves, starts the chain or the first wave and waits until the
transmission ends or is interrupted. dump prints the compiled control blocks of every
wave with a CRC-16/CCITT of each.

--sim runs on heap memory and a simulated DMA engine, which needs no root and no
Raspberry Pi.`
	fmt.Println(str)
}

func mkconf(c config.Config) {
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf(c config.Config) {
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("wavectl version %v\n", Version)
}

func newLogger(c config.Config) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		log.Fatal(err)
	}
	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))
}

// open brings up the subsystem for a command. The returned function closes it.
func open(c config.Config, logger *slog.Logger, sim bool) (*wavedma.Subsystem, func()) {
	options, err := c.Options()
	if err != nil {
		log.Fatal(err)
	}
	options.Simulate = options.Simulate || sim

	s, err := wavedma.Open(logger, options)
	if err != nil {
		log.Fatalf("could not open the waveform subsystem: %+v", err)
	}

	return s, func() {
		err := s.Close()
		if err != nil {
			logger.Warn("close failed", slog.Any("error", err))
		}
	}
}

func interrupted() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch
}

func play(c config.Config, args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	sim := fs.Bool("sim", false, "run on the simulated DMA engine")
	quiet := fs.Bool("quiet", false, "do not show a spinner while playing")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("play needs exactly one program file")
	}

	program, err := config.LoadProgram(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(c)
	s, closeSubsystem := open(c, logger, *sim)
	defer closeSubsystem()

	err = playProgram(s, program, !*quiet, interrupted())
	if err != nil {
		closeSubsystem()
		log.Fatalf("%+v", err)
	}
}

func dump(c config.Config, args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	sim := fs.Bool("sim", false, "run on the simulated DMA engine")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("dump needs exactly one program file")
	}

	program, err := config.LoadProgram(fs.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	logger := newLogger(c)
	s, closeSubsystem := open(c, logger, *sim)
	defer closeSubsystem()

	err = dumpProgram(os.Stdout, s, program)
	if err != nil {
		closeSubsystem()
		log.Fatalf("%+v", err)
	}
}

func serve(c config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	sim := fs.Bool("sim", false, "run on the simulated DMA engine")
	_ = fs.Parse(args)

	logger := newLogger(c)
	s, closeSubsystem := open(c, logger, *sim)
	defer closeSubsystem()

	stop := make(chan struct{})
	defer close(stop)
	if s.Simulator() != nil {
		go driveSimulator(s, stop)
	}

	server := &http.Server{Addr: c.Addr, Handler: BuildMux(s)}
	go func() {
		<-interrupted()
		_ = server.Close()
	}()

	log.Println("now listening for requests at ", c.Addr)
	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		closeSubsystem()
		log.Fatal(err)
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}

	c, err := config.Load(ConfigFileName)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf(c)
	case "conf":
		printconf(c)
	case "version":
		pversion()
	case "play":
		play(c, args[2:])
	case "dump":
		dump(c, args[2:])
	case "serve":
		serve(c, args[2:])
	default:
		log.Fatal("unknown command")
	}
}
