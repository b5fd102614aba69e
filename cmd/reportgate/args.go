package main

import "strings"

// reorderInterspersedFlags moves flags ahead of positional arguments so the
// standard flag package accepts "validate report.json --type dast". Flags named
// in valueFlags consume the following token as their value.
func reorderInterspersedFlags(arguments []string, valueFlags map[string]bool) []string {
	flags := make([]string, 0, len(arguments))
	positionals := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == "--" {
			positionals = append(positionals, arguments[index+1:]...)
			break
		}
		if len(argument) < 2 || !strings.HasPrefix(argument, "-") {
			positionals = append(positionals, argument)
			continue
		}
		flags = append(flags, argument)
		name := strings.TrimLeft(argument, "-")
		if strings.Contains(name, "=") || !valueFlags[name] || index+1 >= len(arguments) {
			continue
		}
		index++
		flags = append(flags, arguments[index])
	}
	return append(flags, positionals...)
}
