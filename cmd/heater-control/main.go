// Command heater-control runs a networked heater controller: it polls
// one-wire temperature sensors, drives a heater through a hysteresis control
// loop, and exposes HTTP, MQTT, and serial-console front-ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/abreis/heater-control/internal/config"
	"github.com/abreis/heater-control/internal/console"
	"github.com/abreis/heater-control/internal/heater"
	"github.com/abreis/heater-control/internal/logic"
	"github.com/abreis/heater-control/internal/memlog"
	"github.com/abreis/heater-control/internal/mqtt"
	"github.com/abreis/heater-control/internal/onewire"
	"github.com/abreis/heater-control/internal/state"
	"github.com/abreis/heater-control/internal/supervisor"
	"github.com/abreis/heater-control/internal/web"
)

const gpioChip = "gpiochip0"

func main() {
	cfgPath := flag.String("config", "/etc/heater-control.yaml", "configuration file")
	broker := flag.String("broker", "", `MQTT broker override ("off" disables)`)
	httpAddr := flag.String("http", "", `HTTP listen address override ("off" disables)`)
	serialDev := flag.String("serial", "", `serial console device override ("off" disables)`)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	config.ApplyDefaults(cfg)
	applyOverrides(cfg, *broker, *httpAddr, *serialDev)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("fatal: config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides lets flags override the endpoints in the file. The literal
// "off" disables an adapter that the file enables.
func applyOverrides(cfg *config.Config, broker, httpAddr, serialDev string) {
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch serialDev {
	case "":
	case "off":
		cfg.Console.Device = ""
	default:
		cfg.Console.Device = serialDev
	}
}

// sensorTask pairs a configured sensor with its probe and retry budgets.
type sensorTask struct {
	id      string
	probe   *onewire.Probe
	budgets onewire.Budgets
}

func run(cfg *config.Config) error {
	lg := memlog.New(cfg.Log.BudgetBytes)

	mode, err := logic.ParseMode(cfg.Control.Mode)
	if err != nil {
		return fmt.Errorf("config mode: %w", err)
	}
	st := state.New(
		state.Setpoint{
			Target:   logic.FromDegrees(cfg.Control.Target),
			HystLow:  logic.FromDegrees(cfg.Control.HysteresisLow),
			HystHigh: logic.FromDegrees(cfg.Control.HysteresisHigh),
			Mode:     mode,
		},
		state.Limits{
			MinTarget: logic.FromDegrees(cfg.Control.MinTarget),
			MaxTarget: logic.FromDegrees(cfg.Control.MaxTarget),
		},
		nil,
	)

	// The actuator is driven to its safe state before any task runs.
	act, err := heater.NewRealActuator(gpioChip, cfg.Heater.GPIOPin)
	if err != nil {
		return fmt.Errorf("init heater: %w", err)
	}
	defer act.Close()
	if err := act.Set(false); err != nil {
		return fmt.Errorf("drive heater off: %w", err)
	}

	// One bus per configured sensor pin; a probe owns its bus exclusively.
	var sensors []sensorTask
	for _, sc := range cfg.Sensors {
		rom, err := onewire.ParseROM(sc.ROM)
		if err != nil {
			return fmt.Errorf("sensor %s: %w", sc.ID, err)
		}
		bus, err := onewire.NewRealBus(gpioChip, sc.GPIOPin)
		if err != nil {
			return fmt.Errorf("sensor %s: init bus: %w", sc.ID, err)
		}
		defer bus.Close()
		sensors = append(sensors, sensorTask{
			id:    sc.ID,
			probe: onewire.NewProbe(bus, rom),
			budgets: onewire.Budgets{
				Absent:  sc.RetryAbsent,
				CRC:     sc.RetryCRC,
				Timeout: sc.RetryTimeout,
			},
		})
	}

	var wd supervisor.Watchdog
	if cfg.Supervisor.WatchdogDevice != "" {
		hw, err := supervisor.NewRealWatchdog(cfg.Supervisor.WatchdogDevice)
		if err != nil {
			return fmt.Errorf("init watchdog: %w", err)
		}
		wd = hw
	} else {
		wd = supervisor.NewFakeWatchdog()
		lg.Warnf("hardware watchdog disabled")
	}
	defer wd.Close()

	sup := supervisor.New(st, lg, wd,
		cfg.Supervisor.FaultThreshold,
		time.Duration(cfg.Supervisor.NetworkGraceMs)*time.Millisecond,
		nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	// Sensor task.
	sensorWindow := time.Duration(cfg.Supervisor.SensorWindowMs) * time.Millisecond
	sensorCheckin := sup.Register("sensor", sensorWindow)
	pollInterval := time.Duration(cfg.Control.PollIntervalMs) * time.Millisecond
	sensorTicker := time.NewTicker(pollInterval)
	defer sensorTicker.Stop()
	spawn(func() {
		sensorLoop(ctx, st, lg, sensors, sensorTicker.C, sensorCheckin)
	})

	// Heater driver task.
	driverCheckin := sup.Register("heater", time.Duration(cfg.Supervisor.ControlWindowMs)*time.Millisecond)
	driver := heater.NewDriver(act, st, time.Duration(cfg.Heater.PatternStepMs)*time.Millisecond)
	spawn(func() { driver.Run(ctx, driverCheckin) })

	// MQTT adapter.
	adapterWindow := time.Duration(cfg.Supervisor.AdapterWindowMs) * time.Millisecond
	if cfg.MQTT.Broker != "" {
		topics := mqtt.NewTopics(cfg.MQTT.TopicRoot, cfg.Device.Name)
		client, err := mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID, topics, st, lg)
		if err != nil {
			// The adapter is best-effort: the controller keeps running.
			lg.Errorf("mqtt: %v", err)
		} else {
			defer client.Close()
			pumpCheckin := sup.Register("mqtt", adapterWindow)
			pump := mqtt.NewPump(st, client)
			heartbeat := time.NewTicker(adapterWindow / 2)
			defer heartbeat.Stop()
			spawn(func() { pump.Run(ctx, heartbeat.C, pumpCheckin) })
		}
	}

	// HTTP adapter.
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, st, lg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Errorf("http server: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		lg.Infof("http listening on %s", cfg.HTTP.Addr)
	}

	// Console adapter.
	if cfg.Console.Device != "" {
		con := console.New(st, lg, console.OpenSerial(cfg.Console.Device, cfg.Console.BaudRate))
		spawn(func() { con.Run(ctx, nil) })
	}

	// Supervisor task.
	supTicker := time.NewTicker(time.Duration(cfg.Supervisor.TickMs) * time.Millisecond)
	defer supTicker.Stop()
	spawn(func() { sup.Run(ctx, supTicker.C) })

	lg.Infof("started: device %s, %d sensors, target %.2f mode %s",
		cfg.Device.Name, len(sensors), cfg.Control.Target, cfg.Control.Mode)

	// Control task runs here, on a shorter period than the adapters.
	controlCheckin := sup.Register("control", time.Duration(cfg.Supervisor.ControlWindowMs)*time.Millisecond)
	controlTicker := time.NewTicker(pollInterval / 2)
	defer controlTicker.Stop()
	loop := logic.NewLoop(time.Duration(cfg.Control.MinDwellMs) * time.Millisecond)
	controlLoop(ctx, st, loop,
		time.Duration(cfg.Control.StalenessMs)*time.Millisecond,
		cfg.Supervisor.FaultThreshold,
		controlTicker.C, time.Now, controlCheckin)

	lg.Infof("shutting down")
	stop()
	wg.Wait()
	return nil
}

// sensorLoop polls every sensor once per tick and records the outcome. A
// poll writes exactly one reading or one fault increment per sensor.
func sensorLoop(ctx context.Context, st *state.Store, lg *memlog.Log, sensors []sensorTask, tick <-chan time.Time, checkin func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			for _, s := range sensors {
				temp, err := s.probe.PollRetry(s.budgets)
				if err != nil {
					kind := faultKind(onewire.KindOf(err))
					count := st.RecordFault(s.id, kind)
					lg.Warnf("sensor %s: %v (%s x%d)", s.id, err, kind, count)
					continue
				}
				st.RecordReading(s.id, temp, now)
			}
			if checkin != nil {
				checkin()
			}
		}
	}
}

func faultKind(k onewire.Kind) state.FaultKind {
	switch k {
	case onewire.KindAbsent:
		return state.FaultSensorAbsent
	case onewire.KindCRC:
		return state.FaultCrcMismatch
	default:
		return state.FaultSensorTimeout
	}
}

// controlLoop runs the hysteresis state machine once per tick against the
// latest store snapshot and writes the resulting actuator command back.
// It never depends on adapter progress.
func controlLoop(ctx context.Context, st *state.Store, loop *logic.Loop, staleness time.Duration, faultThreshold int, tick <-chan time.Time, now func() time.Time, checkin func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			t := now()
			snap := st.Snapshot()
			reading, ok := snap.LatestValid(staleness, t)

			dec := loop.Step(logic.Input{
				Time:        t,
				Valid:       ok,
				Temperature: reading.Temperature,
				Target:      snap.Setpoint.Target,
				HystLow:     snap.Setpoint.HystLow,
				HystHigh:    snap.Setpoint.HystHigh,
				Mode:        snap.Setpoint.Mode,
				ManualOn:    snap.Setpoint.ManualDuty > 0,
				Escalated:   snap.MaxSensorFaults() > faultThreshold,
			})
			st.WriteActuator(dec)

			if checkin != nil {
				checkin()
			}
		}
	}
}
