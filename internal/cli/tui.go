package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/corral/pkg/document"
	"github.com/matzehuels/corral/pkg/group"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// tuiCommand creates the tui command: an interactive group-tree browser
// with disable and minimize toggles.
func (c *CLI) tuiCommand() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "tui <document>",
		Short: "Browse and toggle a document's groups interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runTUI(cmd, args[0], write)
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write toggle changes back to the document store")
	return cmd
}

func (c *CLI) runTUI(cmd *cobra.Command, name string, write bool) error {
	ctx := cmd.Context()

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	runner, err := c.newRunner(cfg, true)
	if err != nil {
		return err
	}
	defer runner.Close()

	_, state, err := runner.Load(ctx, name)
	if err != nil {
		return err
	}
	if _, _, err := runner.Normalize(ctx, state); err != nil {
		return err
	}

	m := NewGroupTreeModel(name, state.Store)
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	fm, ok := finalModel.(GroupTreeModel)
	if !ok || !fm.Dirty {
		return nil
	}
	if !write {
		printDetail("Changes discarded (run with --write to persist)")
		return nil
	}

	defs, err := state.Catalog.List(ctx)
	if err != nil {
		return err
	}
	doc := document.FromState(name, state.Snapshot(), state.Store, defs)
	if err := runner.Documents.Save(ctx, name, doc); err != nil {
		return err
	}
	printSuccess("Wrote document %q", name)
	return nil
}

// =============================================================================
// GroupTreeModel - Interactive group tree with toggles
// =============================================================================

// groupRow is one visible line of the tree, depth-first order.
type groupRow struct {
	ID        group.ID
	Depth     int
	Name      string
	Nodes     int
	Disabled  bool // own flag
	Effective bool // own flag or inherited from an ancestor
	Minimized bool
}

// GroupTreeModel is the bubbletea model for the group tree browser.
type GroupTreeModel struct {
	Document string
	Store    *group.Store
	Rows     []groupRow
	Cursor   int
	Height   int
	Offset   int
	Dirty    bool
}

// NewGroupTreeModel creates a model over the given store.
func NewGroupTreeModel(name string, store *group.Store) GroupTreeModel {
	m := GroupTreeModel{
		Document: name,
		Store:    store,
		Height:   15,
	}
	m.Rows = buildRows(store)
	return m
}

// buildRows flattens the hierarchy into display rows, children under
// their parent.
func buildRows(store *group.Store) []groupRow {
	var rows []groupRow
	var walk func(id group.ID, depth int)
	walk = func(id group.ID, depth int) {
		g, ok := store.Get(id)
		if !ok {
			return
		}
		rows = append(rows, groupRow{
			ID:        id,
			Depth:     depth,
			Name:      g.Name,
			Nodes:     len(g.NodeIDs),
			Disabled:  g.Disabled,
			Effective: store.EffectiveDisabled(id),
			Minimized: g.Minimized,
		})
		for _, child := range store.Children(id) {
			walk(child, depth+1)
		}
	}
	for _, root := range store.Roots() {
		walk(root, 0)
	}
	return rows
}

func (m GroupTreeModel) Init() tea.Cmd {
	return nil
}

func (m GroupTreeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "d", " ":
			if m.Cursor < len(m.Rows) {
				if err := m.Store.ToggleDisabled(m.Rows[m.Cursor].ID); err == nil {
					m.Dirty = true
					m.Rows = buildRows(m.Store)
				}
			}
		case "m":
			if m.Cursor < len(m.Rows) {
				if err := m.Store.ToggleMinimized(m.Rows[m.Cursor].ID); err == nil {
					m.Dirty = true
					m.Rows = buildRows(m.Store)
				}
			}
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m GroupTreeModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Document))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  d disable  m minimize  q quit"))
	b.WriteString("\n\n")

	if len(m.Rows) == 0 {
		b.WriteString(listDimStyle.Render("  no groups"))
		b.WriteString("\n")
		return b.String()
	}

	end := m.Offset + m.Height
	if end > len(m.Rows) {
		end = len(m.Rows)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Rows[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		name := strings.Repeat("  ", r.Depth) + r.Name

		state := ""
		switch {
		case r.Disabled:
			state = "disabled"
		case r.Effective:
			state = "disabled (inherited)"
		}
		if r.Minimized {
			if state != "" {
				state += ", "
			}
			state += "minimized"
		}

		rows = append(rows, []string{cursor, name, fmt.Sprintf("%d", r.Nodes), state})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Group", "Nodes", "State").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}

			actualIdx := m.Offset + row
			if actualIdx >= len(m.Rows) {
				return lipgloss.NewStyle()
			}
			r := m.Rows[actualIdx]
			isCurrent := actualIdx == m.Cursor

			base := lipgloss.NewStyle()
			if r.Effective {
				base = base.Foreground(colorDim)
			} else if col == 3 {
				base = base.Foreground(colorGray)
			}
			if isCurrent {
				if !r.Effective && col != 3 {
					return base.Foreground(colorCyan).Bold(true)
				}
				return base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Rows))))
	if m.Dirty {
		b.WriteString(listDimStyle.Render("  modified"))
	}

	return b.String()
}
