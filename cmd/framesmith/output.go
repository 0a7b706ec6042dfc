package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vampirenirmal/framesmith/internal/app"
	"github.com/vampirenirmal/framesmith/internal/consistency"
	"github.com/vampirenirmal/framesmith/internal/ratelimit"
	"github.com/vampirenirmal/framesmith/internal/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(18)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB020"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

	sectionStyle = lipgloss.NewStyle().
			MarginTop(1).
			PaddingLeft(1).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(lipgloss.Color("#7D56F4"))
)

func field(label, value string) string {
	return labelStyle.Render(label) + " " + value
}

func stateStyle(s scheduler.State) lipgloss.Style {
	switch s {
	case scheduler.StateCompleted:
		return okStyle
	case scheduler.StateFailed:
		return errorStyle
	case scheduler.StateSkipped:
		return mutedStyle
	default:
		return warnStyle
	}
}

func printProfiles(set consistency.ProfileSet) {
	status := warnStyle.Render("unlocked")
	if set.Locked {
		status = okStyle.Render("locked")
	}
	fmt.Println(titleStyle.Render("Consistency profiles") + "  " + status)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Characters"))
	for _, c := range set.OrderedCharacters() {
		b.WriteString("\n" + field(c.Name, c.Attributes))
		b.WriteString("\n" + field("", mutedStyle.Render(fmt.Sprintf("seed %d  confidence %.2f", c.Seed, c.Confidence))))
		if c.MasterImageURL != "" {
			b.WriteString("\n" + field("", okStyle.Render(c.MasterImageURL)))
		}
	}
	fmt.Println(sectionStyle.Render(b.String()))

	b.Reset()
	b.WriteString(titleStyle.Render("Environments"))
	for _, e := range set.OrderedEnvironments() {
		name := e.Name
		if consistencyKey(e.Name) == set.ActiveEnvironment {
			name += " *"
		}
		b.WriteString("\n" + field(name, e.Description))
		b.WriteString("\n" + field("", mutedStyle.Render(strings.Join(nonEmpty(e.Category, e.Lighting, e.TimeOfDay, e.Weather), ", "))))
		if e.MasterImageURL != "" {
			b.WriteString("\n" + field("", okStyle.Render(e.MasterImageURL)))
		}
	}
	fmt.Println(sectionStyle.Render(b.String()))

	if missing := set.MissingMasterImages(); len(missing) > 0 && !set.Locked {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d profiles need a master image; run `framesmith identities`", len(missing))))
	}
}

// consistencyKey mirrors how profile keys are normalized.
func consistencyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printOutcomes(outcomes []scheduler.Outcome) {
	for _, o := range outcomes {
		line := field(string(o.Kind), stateStyle(o.State).Render(string(o.State))) + "  " + o.Key
		switch {
		case o.MediaURL != "":
			line += "\n" + field("", o.MediaURL)
		case o.Error != "":
			line += "\n" + field("", errorStyle.Render(o.Error))
		}
		fmt.Println(line)
	}
}

func printReport(r scheduler.Report) {
	for _, p := range r.Paragraphs {
		var b strings.Builder
		b.WriteString(titleStyle.Render(fmt.Sprintf("Paragraph %d", p.Index)))
		for _, sc := range p.Scenes {
			b.WriteString("\n" + field(sc.Scene.ID, mutedStyle.Render(sc.Scene.Action)))
			for _, o := range []scheduler.Outcome{sc.StartFrame, sc.EndFrame, sc.Video} {
				b.WriteString("\n" + field("", stateStyle(o.State).Render(string(o.Kind))))
			}
			if sc.Transition != nil {
				b.WriteString("\n" + field("", stateStyle(sc.Transition.State).Render(string(sc.Transition.Kind))))
			}
		}
		if len(p.Stitched) > 0 {
			b.WriteString("\n" + field("clips", strings.Join(p.Stitched, "\n"+strings.Repeat(" ", 19))))
		}
		fmt.Println(sectionStyle.Render(b.String()))
	}
	fmt.Println()
	fmt.Println(field("completed", okStyle.Render(fmt.Sprint(r.Completed))))
	fmt.Println(field("failed", errorStyle.Render(fmt.Sprint(r.Failed))))
	fmt.Println(field("skipped", mutedStyle.Render(fmt.Sprint(r.Skipped))))
	fmt.Println(field("credits", fmt.Sprint(r.Credits)))
}

func printStats(s scheduler.Stats) {
	fmt.Println(field("progress", fmt.Sprintf("%d/%d (%.0f%%)", s.Completed, s.Total, s.PercentComplete)))
	if !s.LastUpdate.IsZero() {
		fmt.Println(field("updated", mutedStyle.Render(s.LastUpdate.Local().Format("2006-01-02 15:04:05"))))
	}
}

func printUsage(u ratelimit.Usage) {
	fmt.Println(titleStyle.Render("Quota usage"))
	row := func(label string, used, limit int) {
		style := okStyle
		if limit > 0 && used >= limit {
			style = errorStyle
		} else if limit > 0 && used*5 >= limit*4 {
			style = warnStyle
		}
		fmt.Println(field(label, style.Render(fmt.Sprintf("%d / %d", used, limit))))
	}
	row("minute", u.Minute, u.Limits.PerMinute)
	row("hour", u.Hour, u.Limits.PerHour)
	row("day", u.Day, u.Limits.PerDay)
	row("total", u.Total, u.Limits.MaxTotal)
}

func printRuns(runs []app.RunSummary) {
	if len(runs) == 0 {
		fmt.Println(mutedStyle.Render("no runs stored yet"))
		return
	}
	fmt.Println(titleStyle.Render("Runs"))
	for _, r := range runs {
		st := r.Stats
		status := okStyle
		switch {
		case st.Failed > 0:
			status = errorStyle
		case st.Completed < st.Total:
			status = warnStyle
		}
		fmt.Println(field(r.RunID[:min(8, len(r.RunID))],
			status.Render(fmt.Sprintf("%d/%d", st.Completed, st.Total))+"  "+
				mutedStyle.Render(fmt.Sprintf("%s  updated %s", r.Key, st.LastUpdate.Local().Format("2006-01-02 15:04")))))
	}
}
