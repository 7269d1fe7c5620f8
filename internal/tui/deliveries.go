package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/daaku/ghwebhook/internal/delivery"
)

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#874BFD")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// DefaultRefresh is how often the watch view re-reads the delivery log.
const DefaultRefresh = 2 * time.Second

// Lister reads recent deliveries, newest first.
type Lister interface {
	List(ctx context.Context, limit int) ([]delivery.Record, error)
}

var columnTitles = []string{"Received", "Event", "Action", "Endpoint", "Delivery", "Size"}

// Model is a Bubble Tea model that polls a Lister and shows the results in a
// table.
type Model struct {
	lister   Lister
	limit    int
	interval time.Duration

	width  int
	height int

	table       table.Model
	count       int
	lastErr     error
	lastRefresh time.Time
}

type recordsMsg struct {
	records []delivery.Record
	at      time.Time
}

type errMsg struct{ err error }

type tickMsg time.Time

// NewDeliveries builds a watch model showing up to limit deliveries.
func NewDeliveries(lister Lister, limit int) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: columnTitles[0], Width: 19},
			{Title: columnTitles[1], Width: 16},
			{Title: columnTitles[2], Width: 12},
			{Title: columnTitles[3], Width: 20},
			{Title: columnTitles[4], Width: 36},
			{Title: columnTitles[5], Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		lister:   lister,
		limit:    limit,
		interval: DefaultRefresh,
		table:    t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height-12, 5))

	case recordsMsg:
		m.table.SetRows(Rows(msg.records))
		m.count = len(msg.records)
		m.lastErr = nil
		m.lastRefresh = msg.at
		return m, m.tick()

	case errMsg:
		m.lastErr = msg.err
		return m, m.tick()

	case tickMsg:
		return m, m.fetch()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	status := statusOK.Render(fmt.Sprintf("%d deliveries", m.count))
	if m.lastErr != nil {
		status = statusFailed.Render("error: " + m.lastErr.Error())
	}
	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = m.lastRefresh.Format("15:04:05")
	}

	header := borderStyle.Width(m.width - 4).Render(
		fmt.Sprintf("%s   Refreshed: %s", status, refreshed),
	)
	body := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Deliveries"),
			m.table.View(),
		),
	)
	help := helpStyle.Render(" [q] Quit • [↑/↓] Scroll")

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, body, help))
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		records, err := m.lister.List(ctx, m.limit)
		if err != nil {
			return errMsg{err: err}
		}
		return recordsMsg{records: records, at: time.Now()}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Rows converts records to table rows in the column order used by both
// views.
func Rows(records []delivery.Record) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		action := r.Action
		if action == "" {
			action = "-"
		}
		rows = append(rows, table.Row{
			r.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			r.Event,
			action,
			r.Endpoint,
			r.DeliveryID,
			strconv.Itoa(r.BodySize),
		})
	}
	return rows
}

// RenderTable renders records as a static lipgloss table for non-interactive
// output.
func RenderTable(records []delivery.Record) string {
	if len(records) == 0 {
		return "No deliveries recorded."
	}

	rows := make([][]string, 0, len(records))
	for _, r := range Rows(records) {
		rows = append(rows, []string(r))
	}

	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(columnTitles...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return strings.TrimRight(t.String(), "\n")
}
