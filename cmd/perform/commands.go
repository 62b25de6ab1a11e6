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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-perform/clock"
	"go-perform/config"
	"go-perform/debug"
	"go-perform/engine"
	"go-perform/midi"
	"go-perform/notation"
	"go-perform/scheduler"
	"go-perform/theory"
	"go-perform/timeline"
	"go-perform/tui"
)

var errNoInput = errors.New("nothing to play: pass notation or --file")

func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

var inputFlags = []cli.Flag{
	&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "YAML performance file"},
	&cli.IntFlag{Name: "channel", Aliases: []string{"c"}, Usage: "output channel for inline notation"},
	&cli.Float64Flag{Name: "bpm", Usage: "tempo override"},
}

// readInput collects the voices from --file or the remaining arguments.
func readInput(c *cli.Context, cfg *config.Config) (string, []notation.VoiceSpec, notation.Defaults, error) {
	d := cfg.NotationDefaults()
	var (
		label string
		specs []notation.VoiceSpec
	)
	if path := c.String("file"); path != "" {
		perf, err := config.LoadPerformance(path)
		if err != nil {
			return "", nil, d, err
		}
		label = perf.Label
		specs = perf.Specs()
		d = perf.MergeDefaults(d)
	} else {
		src := strings.Join(c.Args().Slice(), " ")
		if strings.TrimSpace(src) == "" {
			return "", nil, d, errNoInput
		}
		ch := cfg.Output.Channel
		if c.IsSet("channel") {
			ch = c.Int("channel")
		}
		specs = []notation.VoiceSpec{{Channel: ch, Notation: src}}
	}
	if c.IsSet("bpm") {
		d.BPM = c.Float64("bpm")
	}
	return label, specs, d, nil
}

func printDiagnostics(w io.Writer, diags notation.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintf(w, "  %s\n", d)
	}
}

func portsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ports",
		Usage: "list MIDI output ports",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "keep running and report hot-plug changes"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !c.Bool("watch") {
				names, err := midi.OutPortNames(ctx)
				if err != nil {
					return err
				}
				fmt.Println("=== MIDI Output Ports ===")
				for i, n := range names {
					fmt.Printf("  %d: %s\n", i, n)
				}
				return nil
			}

			watcher := midi.NewPortWatcher(nil)
			go watcher.Run(ctx)
			fmt.Println("Watching for port changes (ctrl+c to stop)")
			for ev := range watcher.Events() {
				fmt.Printf("[%s] %-12s %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Name)
			}
			return nil
		},
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "compile notation and print the events",
		ArgsUsage: "[notation]",
		Flags:     inputFlags,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger, closeLog, err := debug.New(cfg.Log.Level, cfg.Log.File)
			if err != nil {
				return err
			}
			defer closeLog()

			label, specs, d, err := readInput(c, cfg)
			if err != nil {
				return err
			}
			compiler := notation.NewCompiler(append(cfg.CompilerOptions(), notation.WithLogger(logger.Named("notation")))...)
			sess, diags, err := compiler.CompileVoices(specs, d)
			if len(diags) > 0 {
				fmt.Printf("%s diagnostics:\n", humanize.Comma(int64(len(diags))))
				printDiagnostics(os.Stdout, diags)
			}
			if err != nil {
				return err
			}
			sess.Label = label
			printSession(os.Stdout, sess)
			return nil
		},
	}
}

func printSession(w io.Writer, sess *timeline.Session) {
	fmt.Fprintf(w, "%s at %.0fbpm, %s events\n", nameOr(sess.Label, "session"), sess.BPM, humanize.Comma(int64(sess.EventCount())))
	for _, ch := range sess.Channels() {
		v := sess.Voices[ch]
		fmt.Fprintf(w, "channel %d: %s events, %.2fs\n", ch, humanize.Comma(int64(len(v.Events))), v.Duration(sess.BPM))
		for _, e := range v.Events {
			fmt.Fprintf(w, "  %8.3fs  m%-3d %-7s %s\n", e.Time, e.Measure, e.Kind, describeEvent(e, sess.BPM))
		}
	}
}

func describeEvent(e timeline.Event, bpm float64) string {
	switch e.Kind {
	case timeline.KindControl:
		return fmt.Sprintf("cc%d=%d", e.Control.Controller, e.Control.Value)
	case timeline.KindProgram:
		return fmt.Sprintf("program %d", e.Program)
	case timeline.KindRest:
		return fmt.Sprintf("%.3g beats", e.DurationBeats)
	}
	names := make([]string, len(e.Pitches))
	for i, p := range e.Pitches {
		names[i] = theory.PitchName(p)
	}
	gate := scheduler.GateTime(e.Articulation, e.DurationBeats*60/bpm, e.Kind == timeline.KindChord)
	return fmt.Sprintf("%-14s %.3g beats  vel %d  gate %s",
		strings.Join(names, " "), e.DurationBeats, e.MIDIVelocity(), gate.Round(time.Millisecond))
}

func nameOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// openSink opens the named port, or a log sink when no port is configured.
func openSink(ctx context.Context, name string, logger *zap.Logger) (midi.Sink, string, error) {
	if name == "" {
		logger.Info("no output port configured, logging messages")
		return midi.NewLogSink(logger.Named("output")), "", nil
	}
	port, err := midi.OpenPort(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return port, port.Name(), nil
}

func playCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "output port (substring match)"},
		&cli.BoolFlag{Name: "no-tui", Usage: "log to the terminal and exit when playback ends"},
	}, inputFlags...)

	return &cli.Command{
		Name:      "play",
		Usage:     "play notation on a MIDI port",
		ArgsUsage: "[notation]",
		Flags:     flags,
		Action: func(c *cli.Context) (err error) {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			withTUI := !c.Bool("no-tui")
			logger, closeLog, err := debug.New(cfg.Log.Level, cfg.Log.File || withTUI)
			if err != nil {
				return err
			}
			defer closeLog()

			label, specs, d, err := readInput(c, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			portName := cfg.Output.PortName
			if c.IsSet("port") {
				portName = c.String("port")
			}
			sink, portName, err := openSink(ctx, portName, logger)
			if err != nil {
				return err
			}

			var src clock.TimingSource
			if cfg.Clock.Precise {
				src = clock.NewSpinSource(cfg.Clock.SpinWindow)
			}
			eng := engine.New(engine.Options{
				Sink:            sink,
				Source:          src,
				QueueSize:       cfg.Output.QueueSize,
				SendTimeout:     cfg.Output.SendTimeout,
				Logger:          logger,
				CompilerOptions: cfg.CompilerOptions(),
			})
			defer func() {
				if cerr := eng.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			if d.BPM != 0 {
				if err := eng.SetBPM(d.BPM); err != nil {
					return err
				}
			}
			sess, diags, err := eng.Compiler().CompileVoices(specs, d)
			if !withTUI {
				printDiagnostics(os.Stderr, diags)
			}
			if err != nil {
				return err
			}
			sess.Label = label
			id, err := eng.ScheduleSession(sess)
			if err != nil {
				return err
			}
			if err := eng.Play(); err != nil {
				return err
			}

			if !withTUI {
				return waitForSession(ctx, eng, id)
			}
			return runMonitor(ctx, eng, portName, logger)
		},
	}
}

// waitForSession blocks until the session finishes or ctx is done.
func waitForSession(ctx context.Context, eng *engine.Engine, id string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, live := eng.Events().Session(id); !live {
				return nil
			}
		}
	}
}

// runMonitor runs the TUI next to the port watcher until either stops.
func runMonitor(ctx context.Context, eng *engine.Engine, portName string, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var ports <-chan midi.PortEvent
	if portName != "" {
		watcher := midi.NewPortWatcher(logger.Named("ports"))
		ports = watcher.Events()
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
	}

	model := tui.NewModel(eng, eng.Events().UpdateChan, ports, portName)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(gctx))
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func panicCommand() *cli.Command {
	return &cli.Command{
		Name:  "panic",
		Usage: "send all-notes-off on every channel",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "output port (substring match)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			name := cfg.Output.PortName
			if c.IsSet("port") {
				name = c.String("port")
			}
			if name == "" {
				return fmt.Errorf("panic: %w", midi.ErrPortNotFound)
			}
			port, err := midi.OpenPort(c.Context, name)
			if err != nil {
				return err
			}
			err = port.AllNotesOff(midi.AllChannels)
			if cerr := port.Close(); err == nil {
				err = cerr
			}
			if err == nil {
				fmt.Printf("all notes off sent to %s\n", port.Name())
			}
			return err
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write the default config file",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if path == "" {
				p, err := config.ConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if err := config.DefaultConfig().SaveTo(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
}
