package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// noColor disables ANSI colors. Set by --no-color or NO_COLOR.
var noColor = os.Getenv("NO_COLOR") != ""

// stderr receives status lines. Replaced in tests.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(stderr, "  %s %s\n", l, val)
}

// sentimentColor picks a color for a sentiment label.
func sentimentColor(label string) string {
	switch {
	case strings.HasSuffix(label, "positive"):
		return colorGreen
	case strings.HasSuffix(label, "negative"):
		return colorRed
	default:
		return colorYellow
	}
}

// bar renders part of total as a fixed-width bar.
func bar(part, total, width int) string {
	if total <= 0 {
		total = 1
	}
	n := min(max(part*width/total, 0), width)
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}
