package console

import "unicode"

// Tokenize splits a free-text command line into an argument vector on
// whitespace. Quote characters are treated as literal token content: they are
// never stripped and do not suppress splitting, so `a "b c"` tokenizes to
// ["a", `"b`, `c"`]. Callers that need shell-style grouping must quote-free
// their arguments before invoking a command. Empty input yields a nil vector.
func Tokenize(commandLine string) []string {
	var argv []string
	start := -1
	for i, r := range commandLine {
		if unicode.IsSpace(r) {
			if start >= 0 {
				argv = append(argv, commandLine[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		argv = append(argv, commandLine[start:])
	}
	return argv
}
