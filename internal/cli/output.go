package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/service"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

// Style functions for dynamic theming
func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) headingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true)
}

// printPanel prints an error card. Returns true when a panel was printed.
func printPanel(p *render.ErrorPanel) bool {
	if p == nil {
		return false
	}
	th := defaultTheme
	fmt.Fprintln(stdout, th.errorStyle().Render("✗ "+p.Title))
	fmt.Fprintln(stdout, "  "+p.Message)
	if p.Retryable && p.RetryKey != "" {
		fmt.Fprintln(stdout, th.hintStyle().Render("  Retry with: portal retry "+p.RetryKey))
	}
	return true
}

func printForecast(p *service.ForecastPage) {
	if printPanel(p.Error) {
		return
	}
	th := defaultTheme
	fmt.Fprintf(stdout, "%s %s (confidence %.0f%%)\n\n", th.headingStyle().Render("Outlook:"),
		th.statusStyle().Render(p.Outlook), p.Confidence)
	fmt.Fprintln(stdout, p.Summary)

	if len(p.Series) > 0 {
		fmt.Fprintln(stdout)
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SERIES\tHORIZON\tCHANGE")
		for _, pt := range p.Series {
			fmt.Fprintf(tw, "%s\t%s\t%+.1f%%\n", pt.Label, pt.Horizon, pt.Value)
		}
		tw.Flush()
	}
	printBullets("Drivers", p.Drivers)
	printBullets("Risks", p.Risks)
}

func printStocks(p *service.StocksPage) {
	if printPanel(p.Error) {
		return
	}
	if p.MarketSummary != "" {
		fmt.Fprintln(stdout, p.MarketSummary)
		fmt.Fprintln(stdout)
	}
	if p.Empty {
		fmt.Fprintf(stdout, "No stocks match %q.\n", p.Filter)
		return
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tPRICE\tMOAT\tGROWTH\tUPSIDE\tRISK\tRATING")
	for _, s := range p.Stocks {
		fmt.Fprintf(tw, "%s\t%.2f\t%.0f\t%.1f\t%.1f\t%.0f\t%s\n", s.Ticker, s.Price, s.Moat, s.Growth, s.Upside, s.Risk, s.Rating)
	}
	tw.Flush()
	if verbose {
		for _, s := range p.Stocks {
			fmt.Fprintf(stdout, "\n%s: %s\n", s.Ticker, s.Thesis)
		}
	}
	fmt.Fprintln(stdout, defaultTheme.hintStyle().Render(fmt.Sprintf("\nFilter: %s (%d shown)", p.Filter, len(p.Stocks))))
}

func printLearning(p *service.LearningPage) {
	if printPanel(p.Error) {
		return
	}
	fmt.Fprintln(stdout, defaultTheme.headingStyle().Render(p.Title))
	if p.Overview != "" {
		fmt.Fprintln(stdout, p.Overview)
	}
	fmt.Fprintln(stdout)
	for i, m := range p.Modules {
		fmt.Fprintf(stdout, "%d. %s (%.0f min)\n", i+1, m.Title, m.Minutes)
		if m.Summary != "" {
			fmt.Fprintf(stdout, "   %s\n", m.Summary)
		}
		if verbose {
			for _, r := range m.Resources {
				fmt.Fprintf(stdout, "   - %s\n", r)
			}
		}
	}
	if len(p.Quiz) > 0 {
		fmt.Fprintln(stdout, "\nQuiz:")
		for _, q := range p.Quiz {
			fmt.Fprintf(stdout, "  Q: %s\n  A: %s\n", q.Question, q.Answer)
		}
	}
}

func printIdeas(p *service.IdeasPage) {
	if printPanel(p.Error) {
		return
	}
	if p.Empty {
		fmt.Fprintln(stdout, "No ideas returned.")
		return
	}
	for _, idea := range p.Ideas {
		fmt.Fprintf(stdout, "- %s", idea.Title)
		if idea.Minutes > 0 {
			fmt.Fprintf(stdout, " (%.0f min)", idea.Minutes)
		}
		fmt.Fprintln(stdout)
		if idea.Description != "" {
			fmt.Fprintf(stdout, "  %s\n", idea.Description)
		}
	}
}

func printChat(p *service.ChatPage) {
	if printPanel(p.Error) {
		fmt.Fprintln(stdout, defaultTheme.hintStyle().Render("  Conversation: "+p.ConversationID))
		return
	}
	fmt.Fprintln(stdout, p.Reply)
	fmt.Fprintln(stdout, defaultTheme.hintStyle().Render("\nConversation: "+p.ConversationID))
}

func printDraft(p *service.DraftPage) {
	if printPanel(p.Error) {
		return
	}
	if p.Subject != "" {
		fmt.Fprintf(stdout, "Subject: %s\n\n", p.Subject)
	}
	fmt.Fprintln(stdout, p.Body)
	if p.MessageID != "" {
		fmt.Fprintln(stdout, defaultTheme.hintStyle().Render(fmt.Sprintf("\nSaved %s draft %s", p.Channel, p.MessageID)))
	}
}

func printBullets(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(stdout, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(stdout, "  • %s\n", it)
	}
}

// clock formats seconds as m:ss.
func clock(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d < 0 {
		d = 0
	}
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", m, s)
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
