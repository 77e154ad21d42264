package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap is the board's key bindings. It implements help.KeyMap.
type keyMap struct {
	Up, Down, Left, Right key.Binding
	Select                key.Binding
	Cancel                key.Binding

	Prev, Next, First, Last key.Binding

	Flip          key.Binding
	Engine        key.Binding
	ToggleSuggest key.Binding
	ToggleThreat  key.Binding
	Preview       key.Binding
	Arrow         key.Binding
	ClearArrows   key.Binding
	CopyFEN       key.Binding
	CopyLine      key.Binding
	Export        key.Binding
	Info          key.Binding
	Help          key.Binding
	Quit          key.Binding

	PromoteQueen, PromoteRook, PromoteBishop, PromoteKnight key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Select: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "pick/move")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),

		Prev:  key.NewBinding(key.WithKeys(",", "pgup"), key.WithHelp(",", "prev ply")),
		Next:  key.NewBinding(key.WithKeys(".", "pgdown"), key.WithHelp(".", "next ply")),
		First: key.NewBinding(key.WithKeys("home", "<"), key.WithHelp("home", "start")),
		Last:  key.NewBinding(key.WithKeys("end", ">"), key.WithHelp("end", "end")),

		Flip:          key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "flip")),
		Engine:        key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "engine on/off")),
		ToggleSuggest: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "suggestion")),
		ToggleThreat:  key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "threat")),
		Preview:       key.NewBinding(key.WithKeys("1", "2", "3", "4", "5"), key.WithHelp("1-5", "preview line")),
		Arrow:         key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "draw arrow")),
		ClearArrows:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear arrows")),
		CopyFEN:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy FEN")),
		CopyLine:      key.NewBinding(key.WithKeys("Y"), key.WithHelp("Y", "copy moves")),
		Export:        key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "export svg")),
		Info:          key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "game info")),
		Help:          key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		PromoteQueen:  key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "queen")),
		PromoteRook:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rook")),
		PromoteBishop: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bishop")),
		PromoteKnight: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "knight")),
	}
}

// ShortHelp is the one-line help shown under the board.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Prev, k.Next, k.Engine, k.Flip, k.Help, k.Quit}
}

// FullHelp is the expanded help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Select, k.Cancel},
		{k.Prev, k.Next, k.First, k.Last, k.Flip},
		{k.Engine, k.ToggleSuggest, k.ToggleThreat, k.Preview},
		{k.Arrow, k.ClearArrows, k.CopyFEN, k.CopyLine, k.Export, k.Info, k.Help, k.Quit},
	}
}

// promotionKeys lists the bindings offered while a promotion is pending.
func (k keyMap) promotionKeys() []key.Binding {
	return []key.Binding{k.PromoteQueen, k.PromoteRook, k.PromoteBishop, k.PromoteKnight, k.Cancel}
}
