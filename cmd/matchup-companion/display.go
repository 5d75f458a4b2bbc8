package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ramonehamilton/matchup-companion/internal/matchup"
	"github.com/ramonehamilton/matchup-companion/internal/scoring"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var labelColors = map[scoring.Label]lipgloss.Color{
	scoring.LabelVeryEasy: lipgloss.Color("46"),
	scoring.LabelEasy:     lipgloss.Color("114"),
	scoring.LabelModerate: lipgloss.Color("214"),
	scoring.LabelHard:     lipgloss.Color("208"),
	scoring.LabelVeryHard: lipgloss.Color("196"),
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func row(key, value string) string {
	return keyStyle.Render(key) + value
}

func renderScore(s scoring.MatchupScore) string {
	label := lipgloss.NewStyle().Bold(true).Foreground(labelColors[s.Label]).Render(string(s.Label))

	lines := []string{
		titleStyle.Render(fmt.Sprintf("%.2f / 5", s.Value)) + "  " + label,
		"",
		row("Win probability", fmt.Sprintf("%.1f%%", s.WinProbability*100)),
		row("Confidence", fmt.Sprintf("%.2f (%s)", s.Confidence, s.ConfidenceBand)),
		row("Fair fight", fmt.Sprintf("%.2f", s.FairFight)),
		row("Battle scores", fmt.Sprintf("%.0f vs %.0f", s.SelfBattleScore, s.OpponentBattleScore)),
	}
	if s.RespectPerEnergy > 0 {
		lines = append(lines, row("Respect / energy", fmt.Sprintf("%.2f", s.RespectPerEnergy)))
	}
	if !s.AsOf.IsZero() {
		lines = append(lines, row("Community as of", formatAge(s.AsOf)))
	}
	if s.Fallback {
		lines = append(lines, "", dimStyle.Render("Not enough data; showing the neutral score."))
	}
	if len(s.Factors) > 0 {
		lines = append(lines, "")
		for _, f := range s.Factors {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  %-12s %.3f  w=%.2f  %s", f.Name, f.Value, f.Weight, f.Detail)))
		}
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderStatus(st matchup.Status) string {
	lines := []string{
		titleStyle.Render("Matchup Companion"),
		"",
		row("Client id", st.ClientID),
		row("Local version", fmt.Sprintf("%d", st.Version)),
		row("Local outcomes", fmt.Sprintf("%d in %d buckets", st.LocalOutcomes, st.LocalBuckets)),
		row("Pending push", fmt.Sprintf("%d", st.Pending)),
		row("Curve anchors", fmt.Sprintf("%d", st.CurveAnchors)),
	}
	if st.AsOf.IsZero() {
		lines = append(lines, row("Community", dimStyle.Render("not merged yet")))
	} else {
		lines = append(lines, row("Community", fmt.Sprintf("%d clients, %d buckets, %s", st.GlobalClients, st.GlobalBuckets, formatAge(st.AsOf))))
	}
	if st.Sync != nil {
		lines = append(lines, "", titleStyle.Render("Sync"))
		lines = append(lines, row("Last push", formatAge(st.Sync.LastPush)))
		lines = append(lines, row("Last pull", formatAge(st.Sync.LastPull)))
		if st.Sync.PassRemaining > 0 {
			lines = append(lines, row("Merge pass", fmt.Sprintf("%d snapshots left", st.Sync.PassRemaining)))
		}
		if st.Sync.LastError != "" {
			lines = append(lines, row("Last error", errorStyle.Render(st.Sync.LastError)))
		}
	} else {
		lines = append(lines, "", dimStyle.Render("Sharing disabled (remote.kind = none)"))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s ago)", t.Local().Format("2006-01-02 15:04:05"), time.Since(t).Round(time.Second))
}
