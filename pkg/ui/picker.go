package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/boardsync/internal/datasource"
)

// ErrPickerAborted is returned when the user leaves the picker without a choice.
var ErrPickerAborted = errors.New("game selection aborted")

// GameOptions turns history rows into picker options keyed by game id.
func GameOptions(games []datasource.GameSummary) []huh.Option[int64] {
	opts := make([]huh.Option[int64], 0, len(games))
	for _, g := range games {
		opts = append(opts, huh.NewOption(truncate(g.Title(), 72), g.ID))
	}
	return opts
}

// NewGamePicker builds the form used to choose a recorded game. The chosen
// id is written to *selected.
func NewGamePicker(games []datasource.GameSummary, selected *int64) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int64]().
				Title("Open game").
				Description(fmt.Sprintf("%d recorded games", len(games))).
				Options(GameOptions(games)...).
				Height(12).
				Value(selected),
		),
	).WithTheme(huh.ThemeDracula())
}

// PickGame runs the picker on the terminal and returns the chosen id.
func PickGame(games []datasource.GameSummary) (int64, error) {
	if len(games) == 0 {
		return 0, datasource.ErrGameNotFound
	}
	selected := games[0].ID
	if err := NewGamePicker(games, &selected).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return 0, ErrPickerAborted
		}
		return 0, err
	}
	return selected, nil
}
