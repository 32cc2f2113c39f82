// Package report renders run reports as JSON, YAML or a text table, and
// publishes GitHub Actions step outputs.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// OutputPackages is the step output holding the affected package roots.
const OutputPackages = "packages"

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat parses json, yaml or text. An empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Write renders rep to w.
func Write(w io.Writer, format Format, rep *release.Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(rep)
		if err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		err := enc.Encode(rep)
		if err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}

		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, Text(rep))
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Text renders rep for a terminal.
func Text(rep *release.Report) string {
	var b strings.Builder

	b.WriteString(headline(rep))
	b.WriteString("\n")

	switch {
	case len(rep.Outcomes) > 0:
		b.WriteString(outcomeTable(rep.Outcomes))
		b.WriteString("\n")
	case len(rep.Packages) > 0:
		b.WriteString(packageTable(rep.Packages))
		b.WriteString("\n")
	}

	if len(rep.Warnings) > 0 {
		b.WriteString(color.YellowString("%s:", english.PluralWord(len(rep.Warnings), "Warning", "")))
		b.WriteString("\n")

		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "  - %s: %s\n", w.Subject, w.Message)
		}
	}

	return b.String()
}

func headline(rep *release.Report) string {
	if rep.Skipped {
		return fmt.Sprintf("%s: no release intent (bump %s), nothing to do", rep.Strategy, rep.Bump)
	}

	line := fmt.Sprintf("%s: %s affected", rep.Strategy, english.Plural(len(rep.Packages), "package", ""))
	if rep.Bump.Releases() {
		line += fmt.Sprintf(" (bump %s)", rep.Bump)
	}

	return line
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

func packageTable(pkgs []affected.Package) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Package", "Root", "Version"})

	for _, pkg := range pkgs {
		tbl.AppendRow(table.Row{pkg.Name, pkg.RootPath, pkg.Version})
	}

	return tbl.Render()
}

func outcomeTable(outcomes []release.Outcome) string {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Package", "Target", "Status", "Detail"})

	for _, out := range outcomes {
		name := out.Package
		if name == "" {
			name = "-"
		}

		tbl.AppendRow(table.Row{name, out.Target, colorStatus(out.Status), out.Detail})
	}

	return tbl.Render()
}

func colorStatus(status release.Status) string {
	switch status {
	case release.StatusCreated, release.StatusWritten:
		return color.GreenString(string(status))
	case release.StatusExists, release.StatusSkipped:
		return color.CyanString(string(status))
	case release.StatusPlanned:
		return color.YellowString(string(status))
	case release.StatusFailed:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}

// AppendStepOutput appends packages=<json array of package roots> to the
// GitHub Actions output file at path.
func AppendStepOutput(path string, pkgs []affected.Package) error {
	roots, err := json.Marshal(affected.Roots(pkgs))
	if err != nil {
		return fmt.Errorf("encode step output: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open step output: %w", err)
	}

	_, err = fmt.Fprintf(file, "%s=%s\n", OutputPackages, roots)

	return errors.Join(err, file.Close())
}
