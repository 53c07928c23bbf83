package util

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	helpIndent   = "   "
	helpMaxWidth = 120
)

var (
	helpSection  = color.New(color.FgGreen, color.Bold).SprintFunc()
	helpCategory = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func helpWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return min(w, helpMaxWidth)
	}
	return helpMaxWidth
}

// wrapText folds whitespace and breaks text into lines of at most width
// columns. Blank-line separated paragraphs are kept apart.
func wrapText(text string, width int) []string {
	var out []string
	for i, para := range strings.Split(text, "\n\n") {
		if i > 0 {
			out = append(out, "")
		}
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len(line)+1+len(w) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

type helpFlag struct {
	label string
	usage string
}

// groupFlags splits visible flags by category, sorted by category name.
func groupFlags(flags []cli.Flag) ([]string, map[string][]helpFlag, int) {
	groups := map[string][]helpFlag{}
	labelWidth := 0
	for _, f := range flags {
		if v, ok := f.(cli.VisibleFlag); ok && !v.IsVisible() {
			continue
		}
		label, usage, _ := strings.Cut(strings.TrimRight(f.String(), "\n"), "\t")
		if strings.HasPrefix(label, "--help") {
			continue
		}
		category := "Global Options"
		if c, ok := f.(cli.CategorizableFlag); ok && c.GetCategory() != "" {
			category = c.GetCategory()
		}
		groups[category] = append(groups[category], helpFlag{label: label, usage: usage})
		labelWidth = max(labelWidth, len(label))
	}
	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, groups, labelWidth
}

// PrettierHelpPrinter replaces the cli help output with colored sections and
// flags grouped under their categories.
func PrettierHelpPrinter() {
	fallback := cli.HelpPrinter
	cli.HelpPrinter = func(w io.Writer, templ string, data interface{}) {
		var (
			flags       []cli.Flag
			commands    []*cli.Command
			name, usage string
			description string
		)
		switch v := data.(type) {
		case *cli.App:
			flags, commands, name, usage, description = v.Flags, v.VisibleCommands(), v.HelpName, v.Usage, v.Description
		case *cli.Command:
			flags, commands, name, usage, description = v.Flags, v.VisibleCommands(), v.HelpName, v.Usage, v.Description
		default:
			fallback(w, templ, data)
			return
		}
		width := helpWidth()

		fmt.Fprintf(w, "%s\n%s%s - %s\n\n", helpSection("NAME:"), helpIndent, name, usage)

		fmt.Fprintf(w, "%s\n%s%s", helpSection("USAGE:"), helpIndent, name)
		if len(commands) > 0 {
			fmt.Fprint(w, " command")
		}
		if len(flags) > 0 {
			fmt.Fprint(w, " [options]")
		}
		fmt.Fprint(w, "\n\n")

		if description != "" {
			fmt.Fprintln(w, helpSection("DESCRIPTION:"))
			for _, line := range wrapText(description, width-len(helpIndent)) {
				fmt.Fprintf(w, "%s%s\n", helpIndent, line)
			}
			fmt.Fprintln(w)
		}

		if len(commands) > 0 {
			fmt.Fprintln(w, helpSection("COMMANDS:"))
			for _, c := range commands {
				if c.Name == "help" {
					continue
				}
				fmt.Fprintf(w, "%s%-16s  %s\n", helpIndent, c.FullName(), c.Usage)
			}
			fmt.Fprintln(w)
		}

		categories, groups, labelWidth := groupFlags(flags)
		if len(categories) == 0 {
			return
		}
		fmt.Fprintf(w, "%s\n\n", helpSection("OPTIONS:"))
		usageWidth := max(width-len(helpIndent)-labelWidth-2, 20)
		for _, category := range categories {
			fmt.Fprintf(w, "  %s\n", helpCategory(category))
			for _, f := range groups[category] {
				lines := wrapText(f.usage, usageWidth)
				fmt.Fprintf(w, "%s%-*s  %s\n", helpIndent, labelWidth, f.label, lines[0])
				for _, cont := range lines[1:] {
					fmt.Fprintf(w, "%s%s  %s\n", helpIndent, strings.Repeat(" ", labelWidth), cont)
				}
			}
			fmt.Fprintln(w)
		}
	}
}
