package cmd

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ecgovern/ecgovern/cmd/global"
	"github.com/ecgovern/ecgovern/internal/configuration"
	"github.com/ecgovern/ecgovern/internal/fan"
	"github.com/ecgovern/ecgovern/internal/governor"
	"github.com/ecgovern/ecgovern/internal/journal"
	"github.com/ecgovern/ecgovern/internal/runstate"
	"github.com/ecgovern/ecgovern/internal/temperature"
	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/guptarohit/asciigraph"
	"github.com/mgutz/ansi"
	"github.com/spf13/cobra"
	"github.com/tomlazar/table"
)

var (
	historyCount int
	showGraph    bool
)

// journalGraphLimit bounds how many journal entries feed the graph.
const journalGraphLimit = 120

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report temperature, thermal state, fan mode and cool-down",
	Long: `Reads the EC registers and the persisted governor state directly.
The persisted state can be stale by up to one governor tick.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadAndValidateConfig()
		config := configuration.CurrentConfig

		actuator := fan.NewActuator(newController())
		source := temperature.NewCpuTemperatureSource(config.ThermalZonePath)

		persisted, err := runstate.NewStore(config.StateDir).Load()
		if err != nil {
			return err
		}
		state := governor.StateSilent.String()
		if persisted.State != "" {
			state = persisted.State
		}

		temperatureText := "unavailable"
		if temp, err := source.GetValue(); err == nil {
			temperatureText = fmt.Sprintf("%d°C", temp)
		}

		modeText := "unavailable"
		if mode, err := actuator.CurrentMode(); err == nil {
			modeText = fan.ModeName(mode)
		}

		dutyText := "unavailable"
		if duty, err := actuator.CurrentDuty(); err == nil {
			dutyText = fmt.Sprintf("%d", duty)
		}

		speedText := "unavailable"
		if speed, err := actuator.CurrentRpm(); err == nil {
			speedText = fmt.Sprintf("%d", speed)
		}

		cooldownText := "-"
		if !persisted.CooldownStart.IsZero() {
			remaining := persisted.CooldownStart.Add(config.CooldownDuration).Sub(time.Now())
			if remaining > 0 {
				cooldownText = remaining.Round(time.Second).String()
			}
		}

		statusTable := table.Table{
			Headers: []string{"", ""},
			Rows: [][]string{
				{"Temperature", temperatureText},
				{"State", state},
				{"Cool-down remaining", cooldownText},
				{"Fan mode", modeText},
				{"Fan duty", dutyText},
				{"Fan speed (raw)", speedText},
			},
		}
		tableConfig := &table.Config{
			ShowIndex:       false,
			Color:           !global.NoColor,
			AlternateColors: true,
			TitleColorCode:  ansi.ColorCode("white+buf"),
			AltColorCodes: []string{
				ansi.ColorCode("white"),
				ansi.ColorCode("white:236"),
			},
		}
		var buf bytes.Buffer
		if err := statusTable.WriteTable(&buf, tableConfig); err != nil {
			return err
		}
		ui.Printfln(buf.String())

		eventJournal := journal.NewJournal(config.DbPath)

		if historyCount > 0 {
			if err := printHistory(eventJournal, historyCount); err != nil {
				return err
			}
		}
		if showGraph {
			if err := printTemperatureGraph(eventJournal); err != nil {
				return err
			}
		}
		return nil
	},
}

func printHistory(eventJournal journal.Journal, limit int) error {
	events, err := eventJournal.Tail(limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		ui.Info("No journal entries yet.")
		return nil
	}

	ui.Printfln("")
	for _, event := range events {
		ui.Printfln("%s  %-18s %3d°C  %s",
			event.Time.Local().Format(time.RFC3339), event.Type, event.Temperature, event.Detail)
	}
	return nil
}

func printTemperatureGraph(eventJournal journal.Journal) error {
	events, err := eventJournal.Tail(journalGraphLimit)
	if err != nil {
		return err
	}

	var values []float64
	for _, event := range events {
		if event.Temperature > 0 {
			values = append(values, float64(event.Temperature))
		}
	}
	if len(values) < 2 {
		ui.Info("Not enough journal entries to plot a graph yet.")
		return nil
	}

	graph := asciigraph.Plot(values,
		asciigraph.Height(10),
		asciigraph.Caption("CPU temperature (journal, oldest to newest)"),
	)
	ui.Printfln("")
	ui.Printfln("%s", graph)
	return nil
}

func init() {
	statusCmd.Flags().IntVarP(&historyCount, "history", "n", 0, "Print the last n journal entries")
	statusCmd.Flags().BoolVarP(&showGraph, "graph", "g", false, "Plot recent journal temperatures")

	rootCmd.AddCommand(statusCmd)
}
