package main

import (
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/boardsync/internal/datasource"
	"github.com/vanderheijden86/boardsync/pkg/analyzer"
	"github.com/vanderheijden86/boardsync/pkg/model"
	"github.com/vanderheijden86/boardsync/pkg/ui"
)

func TestAutoCloseFromEnv(t *testing.T) {
	t.Setenv(autoCloseEnv, "")
	require.Zero(t, autoCloseFromEnv())
	t.Setenv(autoCloseEnv, "250")
	require.Equal(t, 250*time.Millisecond, autoCloseFromEnv())
	t.Setenv(autoCloseEnv, "soon")
	require.Zero(t, autoCloseFromEnv())
	t.Setenv(autoCloseEnv, "-5")
	require.Zero(t, autoCloseFromEnv())
}

func TestTUIRunnerClosesControllerAndExits(t *testing.T) {
	isolate(t)
	store, err := datasource.LoadUCI(datasource.StartFEN, []string{"e2e4"})
	require.NoError(t, err)
	ctrl := analyzer.New(store, nil, analyzer.DefaultOptions())
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Load(context.Background()))

	r := &tuiRunner{
		ctrl:      ctrl,
		autoClose: 50 * time.Millisecond,
		grace:     2 * time.Second,
		opts:      []tea.ProgramOption{tea.WithInput(nil), tea.WithOutput(io.Discard)},
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ui.NewModel(ctrl, ui.Options{Title: "test", ExportDir: t.TempDir()})) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("board screen did not exit after the controller closed")
	}

	select {
	case <-ctrl.Done():
	default:
		t.Fatal("controller still running after the board screen exited")
	}
	require.ErrorIs(t, ctrl.AttemptMove(model.Coord{Row: 6, Col: 3}, model.Coord{Row: 5, Col: 3}), analyzer.ErrClosed)
}
