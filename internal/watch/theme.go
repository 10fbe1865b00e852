package watch

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used by the watch TUI.
type Theme struct {
	Primary        lipgloss.Color // title, cursor
	Secondary      lipgloss.Color // selected row text
	Error          lipgloss.Color
	Warning        lipgloss.Color
	Info           lipgloss.Color
	Success        lipgloss.Color // clean document
	Text           lipgloss.Color
	TextMuted      lipgloss.Color // hints, locations
	BackgroundElem lipgloss.Color // selected row background
	Border         lipgloss.Color // section headers
}

// DarkTheme returns the default theme for dark terminal backgrounds.
func DarkTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#fab283"),
		Secondary:      lipgloss.Color("#5c9cf5"),
		Error:          lipgloss.Color("#e06c75"),
		Warning:        lipgloss.Color("#f5a742"),
		Info:           lipgloss.Color("#56b6c2"),
		Success:        lipgloss.Color("#7fd88f"),
		Text:           lipgloss.Color("#eeeeee"),
		TextMuted:      lipgloss.Color("#808080"),
		BackgroundElem: lipgloss.Color("#1e1e1e"),
		Border:         lipgloss.Color("#484848"),
	}
}

// LightTheme returns a theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Primary:        lipgloss.Color("#b35c00"),
		Secondary:      lipgloss.Color("#0550ae"),
		Error:          lipgloss.Color("#cf222e"),
		Warning:        lipgloss.Color("#bf8700"),
		Info:           lipgloss.Color("#0969da"),
		Success:        lipgloss.Color("#116329"),
		Text:           lipgloss.Color("#1f2328"),
		TextMuted:      lipgloss.Color("#656d76"),
		BackgroundElem: lipgloss.Color("#f6f8fa"),
		Border:         lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds the lipgloss styles derived from a Theme.
type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	selected lipgloss.Style
	err      lipgloss.Style
	warn     lipgloss.Style
	info     lipgloss.Style
	ok       lipgloss.Style
	dim      lipgloss.Style
	text     lipgloss.Style
	spinner  lipgloss.Style

	hintKey  lipgloss.Style
	hintDesc lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		header:   lipgloss.NewStyle().Foreground(t.Border),
		selected: lipgloss.NewStyle().Bold(true).Foreground(t.Secondary).Background(t.BackgroundElem),
		err:      lipgloss.NewStyle().Foreground(t.Error),
		warn:     lipgloss.NewStyle().Foreground(t.Warning),
		info:     lipgloss.NewStyle().Foreground(t.Info),
		ok:       lipgloss.NewStyle().Foreground(t.Success),
		dim:      lipgloss.NewStyle().Foreground(t.TextMuted),
		text:     lipgloss.NewStyle().Foreground(t.Text),
		spinner:  lipgloss.NewStyle().Foreground(t.Primary),

		hintKey:  lipgloss.NewStyle().Foreground(t.Text),
		hintDesc: lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}
