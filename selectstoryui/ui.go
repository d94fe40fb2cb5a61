// Package selectstoryui is the story picker shown when no rom is given on
// the command line: it scrapes the if-archive z-code index and downloads the
// chosen story into a local cache.
package selectstoryui

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const archiveIndexURL = "https://www.ifarchive.org/indexes/if-archive/games/zcode/"
const cacheDuration = 7 * 24 * time.Hour

var docStyle = lipgloss.NewStyle().Margin(1, 2)

type selectStoryState int

const (
	loadingStoryList selectStoryState = iota
	choosingStory
	downloadingStory
)

type story struct {
	name        string
	releaseDate time.Time
	url         string
	description string
}

func (s story) Title() string       { return s.name }
func (s story) Description() string { return s.description }
func (s story) FilterValue() string { return s.name + s.description }

// CreateAppModel builds the gameplay model once a story's bytes are in hand.
type CreateAppModel func(storyBytes []uint8, storyName string) (tea.Model, error)

type selectStoryModel struct {
	state             selectStoryState
	storyList         list.Model
	spinner           spinner.Model
	err               error
	createAppModel    CreateAppModel
	selectedStoryName string
	cacheDir          string
}

type storiesDownloadedMsg []list.Item
type downloadedStoryMsg []uint8
type errMsg struct{ error }

func NewUIModel(createAppModel CreateAppModel, cacheDir string) tea.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return selectStoryModel{
		state:          loadingStoryList,
		storyList:      list.New(make([]list.Item, 0), list.NewDefaultDelegate(), 0, 0),
		createAppModel: createAppModel,
		spinner:        s,
		cacheDir:       cacheDir,
	}
}

func (m selectStoryModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchStoryList())
}

func (m selectStoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			if s, selected := m.storyList.SelectedItem().(story); selected {
				m.state = downloadingStory
				m.selectedStoryName = s.name
				return m, fetchStory(s, m.cacheDir)
			}
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.storyList.SetSize(msg.Width-h, msg.Height-v)

	case storiesDownloadedMsg:
		m.state = choosingStory
		m.storyList.SetShowStatusBar(false)
		m.storyList.SetShowTitle(false)
		return m, m.storyList.SetItems([]list.Item(msg))

	case downloadedStoryMsg:
		newModel, err := m.createAppModel([]uint8(msg), m.selectedStoryName)
		if err != nil {
			m.err = err
			return m, nil
		}
		return newModel, newModel.Init()

	case errMsg:
		m.err = msg
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.storyList, cmd = m.storyList.Update(msg)
	return m, cmd
}

func (m selectStoryModel) View() string {
	if m.err != nil {
		return docStyle.Render(m.err.Error())
	}

	switch m.state {
	case loadingStoryList:
		return fmt.Sprintf("\n\n   %s Loading stories...\n\n", m.spinner.View())
	case choosingStory:
		return docStyle.Render(m.storyList.View())
	case downloadingStory:
		return fmt.Sprintf("\n\n   %s Downloading story...\n\n", m.spinner.View())
	default:
		return ""
	}
}

func cacheFilePath(cacheDir string, key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(cacheDir, hex.EncodeToString(hash[:]))
}

func fetchStory(s story, cacheDir string) tea.Cmd {
	return func() tea.Msg {
		cachePath := ""
		if cacheDir != "" {
			cachePath = cacheFilePath(cacheDir, s.url)
			if info, err := os.Stat(cachePath); err == nil && time.Since(info.ModTime()) < cacheDuration {
				if data, err := os.ReadFile(cachePath); err == nil {
					return downloadedStoryMsg(data)
				}
			}
		}

		c := &http.Client{Timeout: 60 * time.Second}
		res, err := c.Get(s.url)
		if err != nil {
			return errMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck

		storyBytes, err := io.ReadAll(res.Body)
		if err != nil {
			return errMsg{err}
		}

		if cachePath != "" {
			if err := os.MkdirAll(cacheDir, 0755); err == nil {
				os.WriteFile(cachePath, storyBytes, 0644) // nolint:errcheck
			}
		}

		return downloadedStoryMsg(storyBytes)
	}
}

var storyFilePattern = regexp.MustCompile(`.*\.z[12345678]$`)
var releaseDatePattern = regexp.MustCompile(`\d{2}-\w{3}-\d{4}`)

func fetchStoryList() tea.Cmd {
	return func() tea.Msg {
		c := &http.Client{Timeout: 10 * time.Second}
		res, err := c.Get(archiveIndexURL)
		if err != nil {
			return errMsg{err}
		}
		defer res.Body.Close() // nolint:errcheck
		if res.StatusCode != 200 {
			return errMsg{fmt.Errorf("if-archive returned %s", res.Status)}
		}

		doc, err := goquery.NewDocumentFromReader(res.Body)
		if err != nil {
			return errMsg{err}
		}

		var stories []list.Item
		doc.Find("dl dt").Each(func(i int, s *goquery.Selection) {
			title := strings.Replace(s.Find("a").Text(), "◆", "", 1)
			href, _ := s.Find("a").Attr("href")
			if !storyFilePattern.MatchString(href) {
				return
			}

			releaseDate, _ := time.Parse("02-Jan-2006", releaseDatePattern.FindString(s.Find("span").Text()))

			var description string
			s.NextUntil("dt").Each(func(j int, s2 *goquery.Selection) {
				if len(s2.ChildrenFiltered("p").Nodes) == 1 {
					description = s2.Find("p").Text()
				}
			})

			stories = append(stories, story{
				name:        title,
				releaseDate: releaseDate,
				url:         "https://www.ifarchive.org" + href,
				description: description,
			})
		})

		return storiesDownloadedMsg(stories)
	}
}
