package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/davetcode/zvm/selectstoryui"
	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zmachine"
)

var (
	romFilePath string
	options     = zcore.DefaultOptions()
)

func init() {
	flag.StringVar(&romFilePath, "rom", "", "The path of a z-machine rom")
	flag.IntVar(&options.EvalStackSize, "eval-stack-size", options.EvalStackSize, "Bound on the evaluation stack")
	flag.IntVar(&options.CallStackSize, "call-stack-size", options.CallStackSize, "Bound on the call stack")
	flag.IntVar(&options.MaxSaves, "max-saves", options.MaxSaves, "Size of the in-memory undo ring")
	flag.BoolVar(&options.DisableUndoCompression, "disable-undo-compression", false, "Use raw copies for undo slots")
	flag.BoolVar(&options.DisableColor, "disable-color", false, "Clear the color capability bit")
	flag.BoolVar(&options.DisableTimed, "disable-timed", false, "Clear the timed-input capability bit")
	flag.BoolVar(&options.DisableFixed, "disable-fixed", false, "Clear the fixed-font capability bit")
	flag.BoolVar(&options.DisableGraphicsFont, "disable-graphics-font", false, "Refuse the character-graphics font")
	flag.BoolVar(&options.EnableCensorship, "enable-censorship", false, "Set the censorship bit in v3 stories")
	flag.Int64Var(&options.RandomSeed, "random-seed", -1, "Force a deterministic PRNG seed")
	flag.StringVar(&options.TranscriptName, "transcript-name", "transcript.txt", "Filename for the transcript stream")
	flag.StringVar(&options.ScriptName, "script-name", "commands.rec", "Filename for the command-record stream")
	flag.StringVar(&options.ReplayName, "replay-name", "commands.rec", "Filename replayed by input stream 1")
	flag.BoolVar(&options.TranscriptOn, "transcript-on", false, "Start with the transcript stream open")
	flag.BoolVar(&options.ScriptOn, "script-on", false, "Start with the command-record stream open")
	flag.BoolVar(&options.ReplayOn, "replay-on", false, "Start replaying from the replay file")

	intNumber := flag.Int("int-number", int(options.IntNumber), "Interpreter number (1-11) for header byte 0x1e")
	intVersion := flag.String("int-version", string(options.IntVersion), "Interpreter version letter for header byte 0x1f")
	flag.Parse()

	options.IntNumber = uint8(*intNumber)
	if len(*intVersion) > 0 {
		options.IntVersion = (*intVersion)[0]
	}
}

// keyToZChar maps Bubble Tea key messages to ZSCII input codes (§10.5.2.1):
// 129-132 cursor keys, 133-144 function keys, 27 escape, 13 return, 8 delete.
// Keypad digits (145-154) are not distinguished from ordinary keys.
func keyToZChar(msg tea.KeyMsg) uint8 {
	switch msg.Type {
	case tea.KeyUp:
		return 129
	case tea.KeyDown:
		return 130
	case tea.KeyLeft:
		return 131
	case tea.KeyRight:
		return 132
	case tea.KeyF1, tea.KeyF2, tea.KeyF3, tea.KeyF4, tea.KeyF5, tea.KeyF6,
		tea.KeyF7, tea.KeyF8, tea.KeyF9, tea.KeyF10, tea.KeyF11, tea.KeyF12:
		return 133 + uint8(msg.Type-tea.KeyF1)
	case tea.KeyEscape:
		return 27
	case tea.KeyEnter:
		return 13
	case tea.KeyBackspace, tea.KeyDelete:
		return 8
	default:
		return 0
	}
}

func isValidTerminator(keyCode uint8, validTerminators []uint8) bool {
	if keyCode == 0 {
		return false
	}
	for _, t := range validTerminators {
		if t == keyCode {
			return true
		}
	}
	return false
}

type runningStoryState int

const (
	appRunning runningStoryState = iota
	appWaitingForInput
	appWaitingForCharacter
)

type inputTimerTick struct{ generation int }

type runStoryModel struct {
	outputChannel      <-chan any
	sendChannel        chan<- zmachine.InputResponse
	saveRestoreChannel chan<- zmachine.SaveRestoreResponse
	zMachine           *zmachine.ZMachine
	romFilePath        string

	statusBar       zmachine.StatusBar
	screenModel     zmachine.ScreenModel
	lowerWindowText string
	upperWindowText []string
	appState        runningStoryState

	validTerminators []uint8
	inputBox         textinput.Model
	timerGeneration  int
	timerInterval    time.Duration

	replayLines []string

	width  int
	height int

	runtimeError string
	warnings     []string
}

func (m runStoryModel) Init() tea.Cmd {
	return tea.Batch(
		waitForInterpreter(m.outputChannel),
		runInterpreter(m.zMachine),
		tea.Sequence(
			tea.SetWindowTitle(filepath.Base(m.romFilePath)),
			tea.WindowSize(),
		),
	)
}

func runInterpreter(z *zmachine.ZMachine) tea.Cmd {
	return func() tea.Msg {
		z.Run()
		return nil
	}
}

func waitForInterpreter(sub <-chan any) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// startInputTimer arms the timed-input timer: the interval is in tenths of a
// second per the @read contract.
func (m *runStoryModel) startInputTimer(tenths uint16) tea.Cmd {
	if tenths == 0 {
		return nil
	}
	m.timerGeneration++
	m.timerInterval = time.Duration(tenths) * 100 * time.Millisecond
	generation := m.timerGeneration
	return tea.Tick(m.timerInterval, func(time.Time) tea.Msg {
		return inputTimerTick{generation: generation}
	})
}

func (m runStoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeUpperWindow()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			os.Exit(0)
		}

		switch m.appState {
		case appWaitingForCharacter:
			m.appState = appRunning
			m.timerGeneration++ // cancel any pending timer
			if len(msg.Runes) > 0 {
				m.sendChannel <- zmachine.InputResponse{Text: string(msg.Runes[0])}
			} else {
				m.sendChannel <- zmachine.InputResponse{TerminatingKey: keyToZChar(msg)}
			}

		case appWaitingForInput:
			keyCode := keyToZChar(msg)
			if msg.Type == tea.KeyEnter || isValidTerminator(keyCode, m.validTerminators) {
				m.appState = appRunning
				m.timerGeneration++
				m.lowerWindowText += m.inputBox.Value() + "\n"
				terminatingKey := uint8(13)
				if msg.Type != tea.KeyEnter {
					terminatingKey = keyCode
				}
				m.sendChannel <- zmachine.InputResponse{Text: m.inputBox.Value(), TerminatingKey: terminatingKey}
				m.inputBox.SetValue("")
			}
		}

	case inputTimerTick:
		// Stale ticks from cancelled timers carry an old generation
		if msg.generation == m.timerGeneration && m.appState != appRunning {
			m.sendChannel <- zmachine.InputResponse{Timeout: true}
			generation := m.timerGeneration
			return m, tea.Tick(m.timerInterval, func(time.Time) tea.Msg {
				return inputTimerTick{generation: generation}
			})
		}

	case string:
		m.appendLowerOrUpper(msg)
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.InputRequest:
		if len(m.replayLines) > 0 {
			line := m.replayLines[0]
			m.replayLines = m.replayLines[1:]
			m.lowerWindowText += line + "\n"
			m.sendChannel <- zmachine.InputResponse{Text: line, TerminatingKey: 13}
			return m, waitForInterpreter(m.outputChannel)
		}

		m.appState = appWaitingForInput
		m.validTerminators = msg.ValidTerminators
		var timerCmd tea.Cmd
		if msg.Routine != 0 {
			timerCmd = m.startInputTimer(msg.Time)
		}
		return m, tea.Batch(waitForInterpreter(m.outputChannel), timerCmd)

	case zmachine.CharacterRequest:
		m.appState = appWaitingForCharacter
		var timerCmd tea.Cmd
		if msg.Routine != 0 {
			timerCmd = m.startInputTimer(msg.Time)
		}
		return m, tea.Batch(waitForInterpreter(m.outputChannel), timerCmd)

	case zmachine.Save:
		m.saveRestoreChannel <- zmachine.SaveResponse{Success: m.writeSaveFile(msg)}
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.Restore:
		data, err := os.ReadFile(m.saveFilename(msg.Filename, msg.Auxiliary))
		if err != nil {
			m.saveRestoreChannel <- zmachine.RestoreResponse{Success: false}
		} else {
			m.saveRestoreChannel <- zmachine.RestoreResponse{Success: true, Data: data}
		}
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.StatusBar:
		m.statusBar = msg
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.ScreenModel:
		m.screenModel = msg
		m.resizeUpperWindow()
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.EraseWindowRequest:
		m.eraseWindow(int(msg))
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.EraseLineRequest:
		m.eraseLine()
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.TranscriptUpdate:
		appendToFile(options.TranscriptName, string(msg))
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.CommandScriptUpdate:
		appendToFile(options.ScriptName, string(msg))
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.InputStreamRequest:
		if msg == 1 {
			m.loadReplayFile()
		} else {
			m.replayLines = nil
		}
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.SoundEffectRequest:
		// A terminal can only beep
		if msg.SoundNumber <= 2 {
			fmt.Print("\a")
		}
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.Warning:
		m.warnings = append(m.warnings, string(msg))
		fmt.Fprintf(os.Stderr, "%s\n", msg)
		return m, waitForInterpreter(m.outputChannel)

	case zmachine.RuntimeError:
		m.runtimeError = string(msg)
		return m, tea.Quit

	case zmachine.Quit:
		return m, tea.Quit
	}

	if m.appState == appWaitingForInput {
		m.inputBox, cmd = m.inputBox.Update(msg)
	}

	return m, cmd
}

func (m *runStoryModel) appendLowerOrUpper(s string) {
	if m.screenModel.LowerWindowActive {
		m.lowerWindowText += s
		return
	}

	// Upper-window text overwrites the grid at the cursor position
	cursorX := m.screenModel.UpperWindowCursorX - 1
	cursorY := m.screenModel.UpperWindowCursorY - 1
	for _, line := range strings.Split(s, "\n") {
		if cursorY >= 0 && cursorY < len(m.upperWindowText) && cursorX >= 0 {
			row := []rune(m.upperWindowText[cursorY])
			for i, r := range line {
				if cursorX+i < len(row) {
					row[cursorX+i] = r
				}
			}
			m.upperWindowText[cursorY] = string(row)
		}
		cursorY++
		cursorX = 0
	}
}

func (m *runStoryModel) resizeUpperWindow() {
	if m.width <= 0 {
		return
	}

	for len(m.upperWindowText) < m.screenModel.UpperWindowHeight {
		m.upperWindowText = append(m.upperWindowText, strings.Repeat(" ", m.width))
	}
	if len(m.upperWindowText) > m.screenModel.UpperWindowHeight {
		m.upperWindowText = m.upperWindowText[:m.screenModel.UpperWindowHeight]
	}

	for ix, row := range m.upperWindowText {
		if len(row) > m.width {
			m.upperWindowText[ix] = row[:m.width]
		} else if len(row) < m.width {
			m.upperWindowText[ix] = row + strings.Repeat(" ", m.width-len(row))
		}
	}
}

func (m *runStoryModel) eraseWindow(window int) {
	switch window {
	case -2, -1:
		m.lowerWindowText = ""
		for ix := range m.upperWindowText {
			m.upperWindowText[ix] = strings.Repeat(" ", m.width)
		}
	case 0:
		m.lowerWindowText = ""
	case 1:
		for ix := range m.upperWindowText {
			m.upperWindowText[ix] = strings.Repeat(" ", m.width)
		}
	}
}

func (m *runStoryModel) eraseLine() {
	if m.screenModel.LowerWindowActive {
		return
	}

	line := m.screenModel.UpperWindowCursorY - 1
	start := m.screenModel.UpperWindowCursorX - 1
	if line >= 0 && line < len(m.upperWindowText) && start >= 0 && start < len(m.upperWindowText[line]) {
		row := m.upperWindowText[line]
		m.upperWindowText[line] = row[:start] + strings.Repeat(" ", len(row)-start)
	}
}

func (m *runStoryModel) loadReplayFile() {
	data, err := os.ReadFile(options.ReplayName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't open replay file %s: %v\n", options.ReplayName, err)
		return
	}
	m.replayLines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func appendToFile(path string, text string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't open %s: %v\n", path, err)
		return
	}
	defer f.Close() // nolint:errcheck
	f.WriteString(text) // nolint:errcheck
}

func (m runStoryModel) writeSaveFile(msg zmachine.Save) bool {
	return os.WriteFile(m.saveFilename(msg.Filename, msg.Auxiliary), msg.Data, 0644) == nil
}

// saveFilename derives a filename for a save request: the story's suggestion
// when it gave one, else the rom path with a .sav (or .aux) extension.
func (m runStoryModel) saveFilename(suggested string, auxiliary bool) string {
	if suggested != "" {
		return suggested
	}

	extension := ".sav"
	if auxiliary {
		extension = ".aux"
	}

	base := "game"
	if m.romFilePath != "" {
		base = filepath.Base(m.romFilePath)
		if ext := filepath.Ext(base); len(ext) >= 2 && (ext[1] == 'z' || ext[1] == 'Z') {
			base = base[:len(base)-len(ext)]
		}
	}
	return base + extension
}

func createStatusLine(width int, bar zmachine.StatusBar) string {
	rightHandSide := fmt.Sprintf("Score: %d    Moves: %d", bar.Score, bar.Moves)
	if bar.IsTimeBased {
		rightHandSide = fmt.Sprintf("Time: %d:%02d", bar.Score, bar.Moves)
	}

	if len(rightHandSide) >= width {
		return rightHandSide[:width]
	}
	if len(bar.PlaceName)+len(rightHandSide)+1 >= width {
		return fmt.Sprintf("%s %s", bar.PlaceName[:width-len(rightHandSide)-1], rightHandSide)
	}

	return bar.PlaceName + strings.Repeat(" ", width-len(bar.PlaceName)-len(rightHandSide)) + rightHandSide
}

func styleFor(style zmachine.TextStyle, foreground zmachine.Color, background zmachine.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(foreground.ToHex())).
		Background(lipgloss.Color(background.ToHex())).
		Bold(style&zmachine.Bold != 0).
		Italic(style&zmachine.Italic != 0).
		Reverse(style&zmachine.ReverseVideo != 0)
}

func (m runStoryModel) View() string {
	if m.runtimeError != "" {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
		return fmt.Sprintf("\n%s\n\n%s\n", errorStyle.Render("Z-Machine Error:"), m.runtimeError)
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	lowerStyle := styleFor(m.screenModel.LowerWindowTextStyle, m.screenModel.Foreground, m.screenModel.Background)
	upperStyle := styleFor(m.screenModel.UpperWindowTextStyle, m.screenModel.Foreground, m.screenModel.Background)

	s := strings.Builder{}
	lowerWindowHeight := m.height

	if m.statusBar.PlaceName != "" {
		s.WriteString(lowerStyle.Reverse(true).Render(createStatusLine(m.width, m.statusBar)))
		s.WriteString("\n")
		lowerWindowHeight -= 2
	} else {
		for _, row := range m.upperWindowText {
			s.WriteString(upperStyle.Render(row))
			s.WriteString("\n")
		}
		lowerWindowHeight -= len(m.upperWindowText)
	}

	lines := strings.Split(wordwrap.String(m.lowerWindowText, m.width), "\n")
	if len(lines) > lowerWindowHeight-2 {
		lines = lines[len(lines)-lowerWindowHeight+2:]
	}
	for _, line := range lines {
		s.WriteString(lowerStyle.Render(line))
		s.WriteString("\n")
	}

	if m.appState == appWaitingForInput {
		s.WriteString(lowerStyle.Render(m.inputBox.View()))
	}

	return s.String()
}

func newApplicationModel(storyBytes []uint8, storyPath string) (tea.Model, error) {
	outputChannel := make(chan any)
	inputChannel := make(chan zmachine.InputResponse)
	saveRestoreChannel := make(chan zmachine.SaveRestoreResponse)

	z, err := zmachine.LoadRom(storyBytes, options, inputChannel, saveRestoreChannel, outputChannel)
	if err != nil {
		return nil, err
	}
	z.StoryFilename = filepath.Base(storyPath)

	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 50
	ti.Prompt = ""

	model := runStoryModel{
		outputChannel:      outputChannel,
		sendChannel:        inputChannel,
		saveRestoreChannel: saveRestoreChannel,
		zMachine:           z,
		romFilePath:        storyPath,
		appState:           appRunning,
		validTerminators:   []uint8{13},
		inputBox:           ti,
	}

	if options.ReplayOn {
		model.loadReplayFile()
	}

	return model, nil
}

func main() {
	var model tea.Model

	if romFilePath != "" {
		romFileBytes, err := os.ReadFile(romFilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "can't read story file %s: %v\n", romFilePath, err)
			os.Exit(1)
		}

		model, err = newApplicationModel(romFileBytes, romFilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	} else {
		cacheDir, _ := os.UserCacheDir()
		if cacheDir != "" {
			cacheDir = filepath.Join(cacheDir, "zvm")
		}
		model = selectstoryui.NewUIModel(newApplicationModel, cacheDir)
	}

	tui := tea.NewProgram(model)
	if _, err := tui.Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
