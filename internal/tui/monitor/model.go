// Package monitor implements the live server dashboard TUI.
package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nadim/fieldsync/internal/syncclient"
)

// Panel represents which panel is active
type Panel int

const (
	PanelOverview Panel = iota
	PanelBatches
	PanelAppeals
)

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    *syncclient.StatusResponse
	Batches   []syncclient.BatchRecord
	Appeals   []syncclient.Appeal
	Timestamp time.Time
	Err       error
}

// Model is the main Bubble Tea model for the monitor TUI
type Model struct {
	Client *syncclient.Client

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status  *syncclient.StatusResponse
	Batches []syncclient.BatchRecord
	Appeals []syncclient.Appeal

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	Filter       textinput.Model
	Filtering    bool
	ShowHelp     bool
	LastRefresh  time.Time
	Err          error

	RefreshInterval time.Duration
}

// NewModel creates a new monitor model
func NewModel(client *syncclient.Client, interval time.Duration) Model {
	filter := textinput.New()
	filter.Placeholder = "device id filter"
	filter.CharLimit = 64
	filter.Width = 24

	return Model{
		Client:          client,
		RefreshInterval: interval,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelOverview,
		Filter:          filter,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		if msg.Err != nil {
			m.Err = msg.Err
			return m, nil
		}
		m.Err = nil
		m.Status = msg.Status
		m.Batches = msg.Batches
		m.Appeals = msg.Appeals
		m.LastRefresh = msg.Timestamp
		return m, nil
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Filter entry mode captures all keys except enter/esc
	if m.Filtering {
		switch msg.String() {
		case "enter":
			m.Filtering = false
			m.Filter.Blur()
			return m, m.fetchData()
		case "esc":
			m.Filtering = false
			m.Filter.SetValue("")
			m.Filter.Blur()
			return m, m.fetchData()
		default:
			var cmd tea.Cmd
			m.Filter, cmd = m.Filter.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % 3
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + 2) % 3
		return m, nil

	case "1":
		m.ActivePanel = PanelOverview
		return m, nil

	case "2":
		m.ActivePanel = PanelBatches
		return m, nil

	case "3":
		m.ActivePanel = PanelAppeals
		return m, nil

	case "j", "down":
		m.ScrollOffset[m.ActivePanel]++
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "/":
		if m.ActivePanel == PanelBatches {
			m.Filtering = true
			return m, m.Filter.Focus()
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	device := m.Filter.Value()
	client := m.Client
	return func() tea.Msg {
		msg := FetchData(client)
		if device != "" && msg.Err == nil {
			if batches, err := client.RecentBatches(device, activityLimit); err == nil {
				msg.Batches = batches
			}
		}
		return msg
	}
}
