package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"scd30node-go/bus"
	"scd30node-go/config"
	"scd30node-go/node"
	"scd30node-go/types"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the node with a live TUI",
	RunE:  runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&forceSim, "sim", false, "simulated sensor and uplink, whatever the config says")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b := bus.New(64)
	svc, err := node.New(cfg, b, node.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodeDone := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(nodeDone)
	}()

	watch := b.NewConnection("monitor")
	sub := watch.Subscribe(bus.Parse(bus.Wildcard))

	p := tea.NewProgram(newMonitorModel(cfg))
	go func() {
		for m := range sub.Channel() {
			p.Send(busMsg{m})
		}
	}()

	_, err = p.Run()
	cancel()
	<-nodeDone
	watch.Disconnect()
	return err
}

// Log entry for the event viewport.
type eventEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type busMsg struct{ m *bus.Message }

// monitorModel is the Bubble Tea model for the monitor TUI.
type monitorModel struct {
	cfg *config.Config

	state string
	link  types.LinkStatus
	meas  *types.Measurement
	up    *types.UplinkReport
	beat  *types.Heartbeat

	events    []eventEntry
	maxEvents int
	log       viewport.Model
	logReady  bool
	width     int
	height    int
	quitting  bool
}

func newMonitorModel(cfg *config.Config) monitorModel {
	return monitorModel{
		cfg:       cfg,
		state:     "…",
		maxEvents: 200,
		width:     80,
		height:    24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		logH := m.height - 12
		if logH < 4 {
			logH = 4
		}
		if !m.logReady {
			m.log = viewport.New(m.width-4, logH)
			m.logReady = true
		} else {
			m.log.Width = m.width - 4
			m.log.Height = logH
		}
		m.log.SetContent(m.renderEvents())

	case busMsg:
		m.consume(msg.m)
		if m.logReady {
			m.log.SetContent(m.renderEvents())
			m.log.GotoBottom()
		}
		return m, nil
	}

	// Everything else (scroll keys, mouse) belongs to the viewport.
	if m.logReady {
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}
	return m, nil
}

// consume folds one bus message into the model.
func (m *monitorModel) consume(msg *bus.Message) {
	switch p := msg.Payload.(type) {
	case types.NodeState:
		m.state = p.State
		m.addEvent(fmt.Sprintf("state %s → %s", p.Prev, p.State), false)
	case types.Measurement:
		cp := p
		m.meas = &cp
		if p.Valid {
			m.addEvent(fmt.Sprintf("measured co2=%.0fppm temp=%.2f°C rh=%.1f%%", p.CO2PPM, p.TempC, p.RH), false)
		} else {
			m.addEvent("degraded cycle, no reading", true)
		}
	case types.UplinkReport:
		cp := p
		m.up = &cp
		if p.Error != "" {
			m.addEvent(fmt.Sprintf("uplink failed: %s", p.Error), true)
		} else {
			m.addEvent(fmt.Sprintf("uplink port=%d %dB %s", p.Port, p.Bytes, p.Payload), false)
		}
	case types.SleepNotice:
		if p.Deep {
			m.addEvent(fmt.Sprintf("deep sleep for %dms", p.ForMS), false)
		} else {
			m.addEvent(fmt.Sprintf("sleeping %dms between cycles", p.ForMS), false)
		}
	case types.Fault:
		m.addEvent(fmt.Sprintf("fault %s %s", p.Code, p.Detail), true)
	case types.LinkStatus:
		m.link = p
		m.addEvent(fmt.Sprintf("link %s %s", p.Link, p.Error), p.Link != types.LinkUp)
	case types.Heartbeat:
		cp := p
		m.beat = &cp
	}
}

func (m *monitorModel) addEvent(message string, isError bool) {
	m.events = append(m.events, eventEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

func (m monitorModel) renderEvents() string {
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	if len(m.events) == 0 {
		return headerStyle.Render("  (no events yet)")
	}
	var s strings.Builder
	for _, e := range m.events {
		ts := e.timestamp.Format("15:04:05.000")
		if e.isError {
			s.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(ts), errorStyle.Render("✗ "+e.message)))
		} else {
			s.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(ts), infoStyle.Render("ℹ "+e.message)))
		}
	}
	return s.String()
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SCD30 NODE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Node: %s | Sensor: %s | Uplink: %s | Press 'q' to quit",
		m.cfg.Node.Name, m.cfg.Sensor.Type, m.cfg.Uplink.Type)))
	s.WriteString("\n\n")

	status := strings.Builder{}
	status.WriteString(fmt.Sprintf("%s %s   ", labelStyle.Render("State:"), valueStyle.Render(m.state)))
	switch m.link.Link {
	case types.LinkUp:
		status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Link:"), valueStyle.Render("up")))
	case "":
		status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Link:"), headerStyle.Render("…")))
	default:
		status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Link:"), errorStyle.Render(string(m.link.Link))))
	}
	if m.beat != nil {
		status.WriteString(fmt.Sprintf("   %s %s", labelStyle.Render("Uptime:"),
			valueStyle.Render((time.Duration(m.beat.Uptime)*time.Millisecond).Round(time.Second).String())))
	}
	status.WriteString("\n")

	if m.meas != nil && m.meas.Valid {
		status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("CO2:"), valueStyle.Render(fmt.Sprintf("%.0f ppm", m.meas.CO2PPM)),
			labelStyle.Render("Temp:"), valueStyle.Render(fmt.Sprintf("%.2f °C", m.meas.TempC)),
			labelStyle.Render("RH:"), valueStyle.Render(fmt.Sprintf("%.1f %%", m.meas.RH)),
		))
	} else {
		status.WriteString(headerStyle.Render("no measurement yet"))
		status.WriteString("\n")
	}

	if m.up != nil {
		if m.up.Error != "" {
			status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Last uplink:"),
				errorStyle.Render(m.up.Error)))
		} else {
			status.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Last uplink:"),
				valueStyle.Render(fmt.Sprintf("port %d, %d bytes, %s", m.up.Port, m.up.Bytes, m.up.Payload))))
		}
	} else {
		status.WriteString(headerStyle.Render("no uplink yet"))
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(status.String()))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Events:"))
	s.WriteString("\n")
	if m.logReady {
		s.WriteString(boxStyle.Width(m.width - 4).Render(m.log.View()))
	}

	return s.String()
}
