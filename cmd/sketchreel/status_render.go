package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type checkKind int

const (
	checkInfo checkKind = iota
	checkOK
	checkWarn
	checkError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const checkLabelWidth = 22

func renderCheckLine(label string, kind checkKind, detail string, colorize bool) string {
	tag := fmt.Sprintf("[%s]", kindLabel(kind))
	if detail != "" {
		tag += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", tag)
	if colorize {
		return kindColor(kind) + line + ansiReset
	}
	return line
}

func kindLabel(kind checkKind) string {
	switch kind {
	case checkOK:
		return "OK"
	case checkWarn:
		return "WARN"
	case checkError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func kindColor(kind checkKind) string {
	switch kind {
	case checkOK:
		return ansiGreen
	case checkWarn:
		return ansiYellow
	case checkError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderHeading(title string, colorize bool) string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

// shouldColorize reports whether writer is an interactive terminal.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
