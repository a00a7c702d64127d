package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lautenbacher.net/gogate/animation"
	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/lights"
	"lautenbacher.net/gogate/link"
	"lautenbacher.net/gogate/logging"
	"lautenbacher.net/gogate/metrics"
	pl "lautenbacher.net/gogate/platform"
	"lautenbacher.net/gogate/sound"
	u "lautenbacher.net/gogate/util"
)

// App is one configured instance of the controller. A reload tears the
// App down and builds a fresh one from the config file.
type App struct {
	ossignal   chan os.Signal
	config     *c.Config
	platform   pl.Platform
	clock      u.Clock
	registry   *prometheus.Registry
	sound      sound.Player
	channels   []link.Channel
	gates      map[string]*gate.Orchestrator
	server     *http.Server
	watcher    *fsnotify.Watcher
	cancel     context.CancelFunc
	shutdownWg sync.WaitGroup
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{
		ossignal: ossignal,
		clock:    u.NewSystemClock(),
		gates:    make(map[string]*gate.Orchestrator),
	}
}

func main() {
	cfile := flag.String("config", "", "config file (default $GOGATE_CONFIG or config.yml next to the executable)")
	realp := flag.Bool("real", false, "run on the Raspberry Pi instead of the TUI simulation")
	envfile := flag.String("env", ".env", "dotenv file with GOGATE_* overrides")
	flag.Parse()

	if err := c.LoadEnv(*envfile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	configFile := resolveConfigFile(*cfile)

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		app := NewApp(ossignal)
		if err := app.initialise(configFile, *realp); err != nil {
			app.shutdown()
			fmt.Fprintln(os.Stderr, "gogate:", err)
			os.Exit(1)
		}
		reload := app.wait()
		app.shutdown()
		if !reload {
			break
		}
	}
}

// resolveConfigFile picks the flag value, then GOGATE_CONFIG, then
// config.yml next to the executable.
func resolveConfigFile(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GOGATE_CONFIG"); env != "" {
		return env
	}
	exe, err := os.Executable()
	if err != nil {
		return c.CONFILE
	}
	return filepath.Join(filepath.Dir(exe), c.CONFILE)
}

func (a *App) initialise(cfile string, realHW bool) error {
	conf, err := c.ReadConfig(cfile)
	if err != nil {
		return err
	}
	conf.RealHW = realHW
	a.config = conf

	logConf := conf.Logging.TUI
	if realHW {
		logConf = conf.Logging.HW
	}
	if err := logging.Init(!realHW, logConf); err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	slog.Info("Starting gogate", "config", cfile, "role", conf.Link.Role, "backend", conf.Link.Backend, "realHW", realHW)

	if a.platform == nil {
		if realHW {
			a.platform = pl.NewRaspberryPiPlatform(conf)
		} else {
			a.platform = pl.NewTUIPlatform(conf, a.ossignal)
		}
	}
	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	<-a.platform.Ready()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	player, err := sound.NewPlayer(conf.Sound)
	if err != nil {
		slog.Warn("Sound disabled", "error", err)
		player = sound.Silent{}
	}
	a.sound = player

	local, peer, err := a.newLinks(conf)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.startGate(ctx, pl.LocalGate, conf, local, a.sound)
	if peer != nil {
		peerConf := *conf
		peerConf.Link.Role = peer.Role()
		a.startGate(ctx, pl.PeerGate, &peerConf, peer, sound.Silent{})
	}

	if conf.Web.Enabled {
		a.startServer()
	}
	if err := a.startWatcher(conf.Configfile); err != nil {
		slog.Warn("Config file is not watched", "error", err)
	}
	return nil
}

// startGate builds the light buffer, animator and orchestrator of the
// named gate and runs its loop until ctx ends.
func (a *App) startGate(ctx context.Context, name string, conf *c.Config, ch link.Channel, player sound.Player) {
	out := lights.NewBuffer(name, conf.Hardware.Channels, a.platform.Lights())
	anim := animation.NewAnimator(out, conf.Animation, conf.Session, a.clock)
	anim.SetSound(player)

	m := metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"gate": name}, a.registry))
	o := gate.New(anim, ch, a.platform.Trigger(name), a.platform.Indicator(name), a.clock, conf, m)
	a.gates[name] = o

	a.shutdownWg.Add(1)
	go func() {
		defer a.shutdownWg.Done()
		if err := o.Run(ctx); err != nil {
			slog.Error("Gate loop failed", "gate", name, "error", err)
		}
	}()
}

// wait blocks until a signal arrives and reports whether it asks for a
// reload.
func (a *App) wait() bool {
	sig := <-a.ossignal
	if sig == syscall.SIGHUP {
		slog.Info("Reloading configuration")
		return true
	}
	slog.Info("Shutting down", "signal", sig)
	return false
}

func (a *App) shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	a.stopWatcher()
	a.stopServer()
	// closing the links ends a pending connect attempt of an active role
	for _, ch := range a.channels {
		if err := ch.Close(); err != nil {
			slog.Warn("Failed to close link", "role", ch.Role(), "error", err)
		}
	}
	a.shutdownWg.Wait()

	if a.sound != nil {
		if err := a.sound.Close(); err != nil {
			slog.Warn("Failed to close sound output", "error", err)
		}
	}
	if a.platform != nil {
		if a.config != nil && !a.config.RealHW {
			logging.BufferOutput()
		}
		a.platform.Stop()
	}
	if err := logging.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "gogate: failed to close log:", err)
	}
}
