package infrastructure

import "strings"

// shellSpecials are the characters that force quoting when a command line is
// rendered for the download log.
const shellSpecials = " \t'\"$`\\!*?[](){}|;<>&~#%\n\r"

// ShellEscape quotes s for display in a logged command line. exec.Command
// passes arguments verbatim, so this is presentation only: the goal is a line
// that can be pasted back into a shell to reproduce the engine invocation.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, isShellSpecialChar) {
		return s
	}
	// Single-quote wrapping covers everything except the single quote
	// itself, which is spliced in as '"'"'.
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders a binary and its arguments as one shell-safe
// line for logging.
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}

func isShellSpecialChar(c rune) bool {
	return strings.ContainsRune(shellSpecials, c)
}
