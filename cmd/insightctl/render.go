package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/insightd/internal/detector"
	httpserver "github.com/fyrsmithlabs/insightd/internal/http"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// strengthBar renders strength on a ten-cell bar.
func strengthBar(strength int) string {
	if strength < 0 {
		strength = 0
	}
	if strength > detector.MaxStrength {
		strength = detector.MaxStrength
	}
	bar := strings.Repeat("█", strength) + strings.Repeat("░", detector.MaxStrength-strength)
	style := okStyle
	switch {
	case strength >= 8:
		style = errorStyle
	case strength >= 5:
		style = warnStyle
	}
	return style.Render(bar)
}

func renderResults(w io.Writer, results []detector.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No patterns detected."))
		return
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s %d/10\n", headerStyle.Render(r.PatternType), strengthBar(r.Strength), r.Strength)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("kind:"), r.Kind)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("indicators:"), strings.Join(r.Indicators, ", "))
		fmt.Fprintf(w, "  %s\n", r.Description)
		if r.ReflectionPrompt != "" {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render(r.ReflectionPrompt))
		}
	}
}

func renderInsights(w io.Writer, resp httpserver.InsightsResponse) {
	if len(resp.Insights) == 0 {
		fmt.Fprintf(w, "%s\n", dimStyle.Render("No insights recorded for "+resp.UserID+"."))
		return
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Insights for"), resp.UserID)
	for _, rec := range resp.Insights {
		fmt.Fprintf(w, "\n%s %s %d/10\n", headerStyle.Render(rec.PatternType), strengthBar(rec.Strength), rec.Strength)
		fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("occurrences:"), rec.Occurrences)
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("last seen:"), rec.LastSeen.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("evidence:"), rec.Evidence)
	}
}

func renderHealth(w io.Writer, serverURL string, resp httpserver.HealthResponse) {
	status := okStyle.Render("● " + resp.Status)
	if resp.Status != "ok" {
		status = errorStyle.Render("● " + resp.Status)
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Server Status:"), status)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Server URL:"), serverURL)
	if resp.Version != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Version:"), resp.Version)
	}
	if resp.Recorder != "" {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Recorder:"), resp.Recorder)
	}
}

func renderCatalog(w io.Writer, resp httpserver.CatalogResponse) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Catalog"), dimStyle.Render(resp.Version))
	for _, pt := range resp.PatternTypes {
		fmt.Fprintf(w, "\n%s %s\n", headerStyle.Render(pt.Name), dimStyle.Render("("+string(pt.Kind)+")"))
		fmt.Fprintf(w, "  %s\n", pt.Description)
	}
}
