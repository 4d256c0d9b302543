package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ecgovern/ecgovern/internal/api"
	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/ec"
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/governor"
	"github.com/ecgovern/ecgovern/internal/journal"
	"github.com/ecgovern/ecgovern/internal/runstate"
	"github.com/ecgovern/ecgovern/internal/statistics"
	"github.com/ecgovern/ecgovern/internal/temperature"
	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/oklog/run"
)

func RunDaemon() {
	if getProcessOwner() != "root" {
		ui.Fatal("Controlling the EC requires root permissions, please run ecgovern as root")
	}

	config := configuration.CurrentConfig

	store := runstate.NewStore(config.StateDir)
	if err := store.Init(); err != nil {
		ui.Fatal("Unable to initialize state directory: %v", err)
	}

	eventJournal := journal.NewJournal(config.DbPath)
	if err := eventJournal.Init(); err != nil {
		ui.Fatal("Unable to initialize journal: %v", err)
	}

	controller := ec.NewEmbeddedController(config.EcChannelPath, config.EcModule, ec.RetryPolicy{
		MaxAttempts: config.Reset.MaxAttempts,
		Backoff:     config.Reset.Backoff,
	})
	if !controller.Available() {
		ui.Fatal("EC register channel not available at %s, is the %s module loaded with write support?",
			config.EcChannelPath, config.EcModule)
	}

	actuator := fan.NewActuator(controller)
	source := temperature.NewCpuTemperatureSource(config.ThermalZonePath)

	thermalGovernor := governor.NewGovernor(controller, actuator, source, store, eventJournal)

	statistics.Register(statistics.NewGovernorCollector(governor.LatestStatus))

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		if config.Api.Enabled {
			// === REST status service
			echoRest := api.CreateRestService()
			g.Add(func() error {
				addr := fmt.Sprintf("%s:%d", config.Api.Host, config.Api.Port)
				err := echoRest.Start(addr)
				if err != nil && err != http.ErrServerClosed {
					ui.Error("Cannot start REST service (%s)", err.Error())
					return err
				}
				return nil
			}, func(err error) {
				ui.Info("Stopping REST service...")
				timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer timeoutCancel()
				if err := echoRest.Shutdown(timeoutCtx); err != nil {
					ui.Warning("Error stopping REST service: " + err.Error())
				} else {
					ui.Info("REST service stopped.")
				}
			})
		}
	}
	{
		// === thermal governor
		g.Add(func() error {
			err := thermalGovernor.Run(ctx)
			ui.Info("Thermal governor stopped.")
			return err
		}, func(err error) {
			cancel()
		})
	}
	{
		sig := make(chan os.Signal)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM, os.Kill)

		g.Add(func() error {
			<-sig
			ui.Info("Received SIGTERM signal, exiting...")
			return nil
		}, func(err error) {
			defer close(sig)
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	} else {
		ui.Info("Done.")
		os.Exit(0)
	}
}

func getProcessOwner() string {
	stdout, err := exec.Command("whoami").Output()
	if err != nil {
		ui.Error("Unable to determine process owner: %v", err)
		return ""
	}
	return strings.TrimSpace(string(stdout))
}
