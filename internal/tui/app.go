package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/polymesh/meshview/internal/backend"
	"github.com/polymesh/meshview/internal/blocklog"
	"github.com/polymesh/meshview/internal/config"
	"github.com/polymesh/meshview/internal/prefs"
)

// SourceURL is linked from the side panel.
const SourceURL = "https://github.com/PolymeshAssociation/polymesh_api_example_gui"

// maxUpdatesPerFrame bounds how much backend work one frame does.
const maxUpdatesPerFrame = 64

// Source is what the UI needs from a running backend.
type Source interface {
	NextUpdate() (backend.UpdateMessage, bool)
	URL() string
	Close()
}

// Connector starts a backend for url.
type Connector func(ctx context.Context, url string) Source

// App is the bubbletea model. Every frame it drains backend updates and
// redraws.
type App struct {
	ctx     context.Context
	cfg     config.Config
	log     zerolog.Logger
	store   *prefs.Store
	connect Connector
	source  Source
	// running is false once the source has reported Stopped.
	running bool

	state  prefs.AppState
	blocks *blocklog.Log

	urlInput textinput.Model
	focus    focusArea
	offset   int
	width    int
	height   int
	keys     keyMap

	chain     string
	version   string
	connected bool
	status    string
	statusErr bool
	devBuild  bool
	now       func() time.Time
}

type focusArea int

const (
	focusBlocks focusArea = iota
	focusURL
)

// Option customizes an App.
type Option func(*App)

// WithLogger routes UI logs, including one line per block.
func WithLogger(l zerolog.Logger) Option { return func(a *App) { a.log = l } }

// WithStore persists the URL whenever it changes.
func WithStore(s *prefs.Store) Option { return func(a *App) { a.store = s } }

// WithDevBuild shows the development-build warning.
func WithDevBuild(dev bool) Option { return func(a *App) { a.devBuild = dev } }

// WithClock overrides time.Now for block receive stamps.
func WithClock(now func() time.Time) Option { return func(a *App) { a.now = now } }

// New builds the UI and starts a backend on state.URL.
func New(ctx context.Context, cfg config.Config, state prefs.AppState, connect Connector, opts ...Option) *App {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = config.DefaultNodeURL
	in.CharLimit = 512
	in.SetValue(state.URL)

	a := &App{
		ctx:      ctx,
		cfg:      cfg,
		log:      zerolog.Nop(),
		connect:  connect,
		state:    state,
		blocks:   blocklog.New(cfg.UI.MaxBlocks),
		urlInput: in,
		keys:     defaultKeyMap(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.source = connect(ctx, state.URL)
	a.running = true
	a.setStatus("connecting to "+state.URL, false)
	return a
}

// State is what gets persisted on shutdown.
func (a *App) State() prefs.AppState { return a.state }

// Blocks exposes the recent-block log.
func (a *App) Blocks() *blocklog.Log { return a.blocks }

// Close stops the running backend.
func (a *App) Close() {
	if a.source != nil {
		a.source.Close()
	}
}

type frameMsg time.Time

type statusMsg string

type errMsg struct{ error }

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.cfg.UI.Tick, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.tick())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case frameMsg:
		a.pollBackend()
		return a, a.tick()
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.urlInput.Width = max(sidePanelWidth-4, 10)
		a.clampOffset()
	case tea.KeyMsg:
		if a.focus == focusURL {
			return a.handleURLKey(m)
		}
		return a.handleBrowseKey(m)
	case statusMsg:
		a.setStatus(string(m), false)
	case errMsg:
		a.setStatus("error: "+m.Error(), true)
	}
	return a, nil
}

func (a *App) handleBrowseKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(m, a.keys.Focus):
		a.focus = focusURL
		return a, a.urlInput.Focus()
	case key.Matches(m, a.keys.Up):
		a.scroll(-1)
	case key.Matches(m, a.keys.Down):
		a.scroll(1)
	case key.Matches(m, a.keys.PageUp):
		a.scroll(-a.visibleRows())
	case key.Matches(m, a.keys.PageDown):
		a.scroll(a.visibleRows())
	case key.Matches(m, a.keys.Top):
		a.offset = 0
	case key.Matches(m, a.keys.Bottom):
		a.offset = a.maxOffset()
	}
	return a, nil
}

func (a *App) handleURLKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case m.Type == tea.KeyCtrlC:
		return a, tea.Quit
	case key.Matches(m, a.keys.Apply):
		return a, a.applyURL(a.urlInput.Value())
	case key.Matches(m, a.keys.Blur):
		a.urlInput.SetValue(a.state.URL)
		a.urlInput.Blur()
		a.focus = focusBlocks
		return a, nil
	}
	var cmd tea.Cmd
	a.urlInput, cmd = a.urlInput.Update(m)
	return a, cmd
}

// applyURL resolves input, restarts the backend on the result and persists
// it.
func (a *App) applyURL(input string) tea.Cmd {
	node, err := config.ResolveNode(input, a.cfg.Node.Presets)
	if err != nil {
		a.setStatus(err.Error(), true)
		return nil
	}
	a.urlInput.Blur()
	a.focus = focusBlocks
	a.urlInput.SetValue(node.URL)
	if node.URL == a.state.URL && a.source != nil && a.running {
		a.setStatus("already following "+node.URL, false)
		return nil
	}

	a.state.URL = node.URL
	a.restart()
	return a.saveStateCmd()
}

func (a *App) restart() {
	if a.source != nil {
		a.source.Close()
	}
	a.blocks.Reset()
	a.offset = 0
	a.chain, a.version, a.connected = "", "", false
	a.log.Info().Str("url", a.state.URL).Msg("switching node")
	a.source = a.connect(a.ctx, a.state.URL)
	a.running = true
	a.setStatus("connecting to "+a.state.URL, false)
}

func (a *App) saveStateCmd() tea.Cmd {
	if a.store == nil {
		return nil
	}
	state := a.state
	return func() tea.Msg {
		if err := a.store.Save(a.ctx, state); err != nil {
			return errMsg{err}
		}
		return statusMsg("saved " + state.URL)
	}
}

// pollBackend drains queued updates without blocking the frame.
func (a *App) pollBackend() {
	if a.source == nil {
		return
	}
	for i := 0; i < maxUpdatesPerFrame; i++ {
		msg, ok := a.source.NextUpdate()
		if !ok {
			return
		}
		a.apply(msg)
	}
}

func (a *App) apply(msg backend.UpdateMessage) {
	switch m := msg.(type) {
	case backend.NewBlock:
		b := blocklog.FromHeader(m.Header, a.now())
		a.log.Info().Msg(b.String())
		a.blocks.Push(b)
		// keep the rows under the cursor steady while scrolled back
		if a.offset > 0 {
			a.offset++
		}
		a.clampOffset()
	case backend.Connected:
		a.chain, a.version, a.connected = m.Chain, m.Version, true
		a.setStatus(fmt.Sprintf("connected to %s (%s)", m.Chain, m.Version), false)
	case backend.Stopped:
		a.connected, a.running = false, false
		if m.Err != nil {
			a.setStatus("backend stopped: "+m.Err.Error(), true)
		} else {
			a.setStatus("backend stopped", false)
		}
	}
}

func (a *App) setStatus(s string, isErr bool) {
	a.status, a.statusErr = s, isErr
}

func (a *App) scroll(delta int) {
	a.offset += delta
	a.clampOffset()
}

func (a *App) maxOffset() int {
	return max(a.blocks.Len()-a.visibleRows(), 0)
}

func (a *App) clampOffset() {
	a.offset = min(max(a.offset, 0), a.maxOffset())
}
