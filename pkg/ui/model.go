// Package ui is the terminal front end: a bubbletea program that draws the
// controller's published views and turns key presses into controller
// commands.
package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/debug"
	"github.com/vanderheijden86/boardsync/pkg/export"
	"github.com/vanderheijden86/boardsync/pkg/hooks"
	"github.com/vanderheijden86/boardsync/pkg/metrics"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/watcher"
)

// Options configures the TUI.
type Options struct {
	Title       string
	SquareWidth int
	// ExportDir receives ctrl+s board snapshots.
	ExportDir string
	// HooksDir holds the hooks.yaml run around exports.
	HooksDir string
	NoHooks  bool
	// Watcher, when set, reports changes to the open game file.
	Watcher *watcher.Watcher
	// Reload re-reads the game file after a change. The controller is
	// refreshed once it returns without error.
	Reload func() error
}

// viewMsg carries a view published by the controller.
type viewMsg analyzer.View

// FileChangedMsg is sent when the watched game file changed.
type FileChangedMsg struct{}

type statusMsg struct {
	text string
	err  bool
}

// ControllerClosedMsg is sent once the controller stops publishing views.
type ControllerClosedMsg struct{}

// WaitForViewCmd waits for the next published view.
func WaitForViewCmd(c *analyzer.Controller) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-c.Updates()
		if !ok {
			return ControllerClosedMsg{}
		}
		return viewMsg(v)
	}
}

// WatchFileCmd returns a command that waits for file changes and sends FileChangedMsg
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changed()
		return FileChangedMsg{}
	}
}

// Model is the bubbletea model for the board screen.
type Model struct {
	ctrl  *analyzer.Controller
	opts  Options
	theme Theme
	keys  keyMap
	help  help.Model
	info  infoPanel

	view      analyzer.View
	cursor    model.Coord
	selected  *model.Coord
	arrowFrom *model.Coord
	preview   int

	showInfo bool
	width    int
	height   int
	status   string
	isErr    bool
}

// NewModel creates the board screen for ctrl.
func NewModel(ctrl *analyzer.Controller, opts Options) Model {
	if opts.SquareWidth < 2 {
		opts.SquareWidth = 4
	}
	h := help.New()
	h.ShowAll = false
	return Model{
		ctrl:   ctrl,
		opts:   opts,
		theme:  DefaultTheme(lipgloss.DefaultRenderer()),
		keys:   defaultKeyMap(),
		help:   h,
		info:   newInfoPanel(40, 20),
		view:   ctrl.View(),
		cursor: model.Coord{Row: 6, Col: 4},
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{WaitForViewCmd(m.ctrl)}
	if m.opts.Watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m.view = analyzer.View(msg)
		if m.showInfo {
			m.info.Update(m.view)
		}
		return m, WaitForViewCmd(m.ctrl)

	case ControllerClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.info.Resize(m.sidebarWidth(), m.height-6)
		m.info.lastSeq = 0
		m.info.Update(m.view)
		return m, nil

	case FileChangedMsg:
		cmds := []tea.Cmd{m.reloadCmd()}
		if m.opts.Watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.opts.Watcher))
		}
		return m, tea.Batch(cmds...)

	case statusMsg:
		m.status, m.isErr = msg.text, msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	if m.showInfo {
		var cmd tea.Cmd
		m.info.vp, cmd = m.info.vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) reloadCmd() tea.Cmd {
	reload, ctrl := m.opts.Reload, m.ctrl
	return func() tea.Msg {
		if reload != nil {
			if err := reload(); err != nil {
				return statusMsg{text: "reload failed: " + err.Error(), err: true}
			}
		}
		ctrl.Refresh()
		return statusMsg{text: "game file reloaded"}
	}
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status, m.isErr = "", false

	if m.view.Promotion != nil {
		return m.handlePromotionKeys(msg), nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Info):
		m.showInfo = !m.showInfo
		if m.showInfo {
			m.info.lastSeq = 0
			m.info.Update(m.view)
		}

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, 0)
	case key.Matches(msg, m.keys.Left):
		m.moveCursor(0, -1)
	case key.Matches(msg, m.keys.Right):
		m.moveCursor(0, 1)
	case key.Matches(msg, m.keys.Select):
		m.selectSquare()
	case key.Matches(msg, m.keys.Cancel):
		m.selected, m.arrowFrom = nil, nil

	case key.Matches(msg, m.keys.Prev):
		m.ctrl.Step(-1)
	case key.Matches(msg, m.keys.Next):
		m.ctrl.Step(1)
	case key.Matches(msg, m.keys.First):
		m.ctrl.First()
	case key.Matches(msg, m.keys.Last):
		m.ctrl.Last()

	case key.Matches(msg, m.keys.Flip):
		m.ctrl.Flip()
	case key.Matches(msg, m.keys.Engine):
		if err := m.ctrl.ToggleEngine(); err != nil {
			m.setErr(err)
		}
	case key.Matches(msg, m.keys.ToggleSuggest):
		m.ctrl.ToggleOverlay(model.ArrowSuggestion)
	case key.Matches(msg, m.keys.ToggleThreat):
		m.ctrl.ToggleOverlay(model.ArrowThreat)
	case key.Matches(msg, m.keys.Preview):
		n := int(msg.String()[0] - '0')
		if m.preview == n {
			m.preview = 0
			m.ctrl.ClearHover()
		} else {
			m.preview = n
			m.ctrl.Hover(n)
		}

	case key.Matches(msg, m.keys.Arrow):
		if m.arrowFrom == nil {
			from := m.cursor
			m.arrowFrom = &from
			m.status = "arrow from " + from.Square()
		} else {
			m.ctrl.DrawArrow(*m.arrowFrom, m.cursor)
			m.arrowFrom = nil
		}
	case key.Matches(msg, m.keys.ClearArrows):
		m.ctrl.ClearArrows()

	case key.Matches(msg, m.keys.CopyFEN):
		if m.view.Snapshot != nil {
			m.copy("FEN", m.view.Snapshot.FEN)
		}
	case key.Matches(msg, m.keys.CopyLine):
		if m.view.Snapshot != nil {
			m.copy("moves", strings.Join(m.view.Snapshot.UCIMoves(), " "))
		}
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	}
	return m, nil
}

func (m Model) handlePromotionKeys(msg tea.KeyMsg) Model {
	var kind model.Kind
	switch {
	case key.Matches(msg, m.keys.PromoteQueen):
		kind = model.Queen
	case key.Matches(msg, m.keys.PromoteRook):
		kind = model.Rook
	case key.Matches(msg, m.keys.PromoteBishop):
		kind = model.Bishop
	case key.Matches(msg, m.keys.PromoteKnight):
		kind = model.Knight
	case key.Matches(msg, m.keys.Cancel):
		if err := m.ctrl.CancelPromotion(); err != nil {
			m.setErr(err)
		}
		return m
	default:
		return m
	}
	if err := m.ctrl.ResolvePromotion(kind); err != nil {
		m.setErr(err)
	}
	return m
}

// moveCursor moves by screen direction, so "up" follows the flip.
func (m *Model) moveCursor(dr, dc int) {
	screen := screenToBoard(m.cursor, m.view.Flipped)
	screen.Row = clampInt(screen.Row+dr, 0, 7)
	screen.Col = clampInt(screen.Col+dc, 0, 7)
	m.cursor = screenToBoard(screen, m.view.Flipped)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Model) selectSquare() {
	if m.selected == nil {
		if _, ok := m.view.PieceAt(m.cursor); ok {
			sel := m.cursor
			m.selected = &sel
		}
		return
	}
	from := *m.selected
	if from == m.cursor {
		m.selected = nil
		return
	}
	mover, _ := m.view.PieceAt(from)
	if other, ok := m.view.PieceAt(m.cursor); ok && other.Color == mover.Color {
		sel := m.cursor
		m.selected = &sel
		return
	}
	m.selected = nil
	if err := m.ctrl.AttemptMove(from, m.cursor); err != nil {
		m.setErr(err)
	}
}

func (m *Model) setErr(err error) {
	m.status, m.isErr = err.Error(), true
	debug.Log("ui: %v", err)
}

func (m *Model) copy(what, text string) {
	if err := clipboard.WriteAll(text); err != nil {
		m.setErr(fmt.Errorf("copy %s: %w", what, err))
		return
	}
	m.status = "copied " + what
}

func (m Model) exportCmd() tea.Cmd {
	v, o := m.view, m.opts
	return func() tea.Msg {
		dir := o.ExportDir
		if dir == "" {
			dir = "."
		}
		path := filepath.Join(dir, fmt.Sprintf("board-%s.svg", time.Now().Format("20060102-150405")))
		hctx := hooks.ExportContext{ExportPath: path, ExportFormat: "svg", Ply: v.Ply, Timestamp: time.Now()}
		if v.Snapshot != nil {
			hctx.FEN = v.Snapshot.FEN
		}
		exec, err := hooks.Around(o.HooksDir, hctx, o.NoHooks, func() error {
			return export.SaveBoardSnapshot(SnapshotOptions(v, path, o.Title))
		})
		if err != nil {
			return statusMsg{text: "export failed: " + err.Error(), err: true}
		}
		text := "saved " + path
		if exec != nil {
			text += " (" + strings.SplitN(exec.Summary(), "\n", 2)[0] + ")"
		}
		return statusMsg{text: text}
	}
}

func (m Model) sidebarWidth() int {
	w := m.width - (8*m.opts.SquareWidth + 2) - 4
	if w < 24 {
		w = 24
	}
	return w
}

func (m Model) View() string {
	defer metrics.Timer(metrics.BoardRender)()
	t := m.theme
	v := m.view

	board := RenderBoard(t, v, BoardInput{Cursor: m.cursor, Selected: m.selected, SquareWidth: m.opts.SquareWidth})

	side := m.sidebarWidth()
	var right string
	if m.showInfo {
		right = m.info.View()
	} else {
		listH := m.height - 14
		if listH < 4 {
			listH = 4
		}
		right = lipgloss.JoinVertical(lipgloss.Left,
			RenderEnginePanel(t, v, side),
			"",
			RenderMoveList(t, v, side, listH),
		)
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, board, "  ", right)

	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n\n")
	sb.WriteString(body)
	sb.WriteString("\n\n")
	if v.Promotion != nil {
		sb.WriteString(t.Bold.Render("Promote to: "))
		sb.WriteString(m.help.ShortHelpView(m.keys.promotionKeys()))
		sb.WriteString("\n")
	}
	switch {
	case m.isErr:
		sb.WriteString(t.Error.Render(m.status))
	case m.status != "":
		sb.WriteString(t.MutedText.Render(m.status))
	case v.LastError != "":
		sb.WriteString(t.Error.Render(v.LastError))
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m Model) header() string {
	t := m.theme
	v := m.view
	title := m.opts.Title
	if title == "" {
		title = "boardsync"
	}
	pos := fmt.Sprintf("ply %d/%d", v.Index+1, v.Len)
	if v.Loading {
		pos += " …"
	}
	parts := []string{
		t.Header.Render(truncate(title, 48)),
		t.MutedText.Render(v.Mode.String()),
		t.Base.Render(pos),
	}
	if v.Snapshot != nil {
		parts = append(parts, t.MutedText.Render(v.Snapshot.Turn.String()+" to move"))
	}
	return strings.Join(parts, "  ")
}

// SnapshotOptions describes the displayed board for a file export.
func SnapshotOptions(v analyzer.View, path, title string) export.BoardSnapshotOptions {
	opts := export.BoardSnapshotOptions{
		Path:     path,
		Title:    title,
		Pieces:   v.Pieces,
		Arrows:   v.Arrows,
		LastMove: v.LastMove,
		Flipped:  v.Flipped,
	}
	if v.Snapshot != nil {
		opts.Caption = v.Snapshot.FEN
	}
	return opts
}
