package cli

import "fmt"

// VersionPair is one "--set-version NAME VALUE" occurrence.
type VersionPair struct {
	Name  string
	Value string
}

// ExtractRepeatable pulls every occurrence of a two-argument flag
// (name, followed by two positional values) and every occurrence of a
// one-argument flag (name, followed by one positional value) out of args,
// returning the pairs, the singles, and the remaining arguments in order.
// flag.FlagSet has no notion of a multi-token flag value, so repeated
// "--set-version NAME VALUE" flags are pre-scanned here before the rest of
// argv is handed to flag.Parse.
func ExtractRepeatable(args []string, pairFlag, singleFlag string) (pairs []VersionPair, singles []string, rest []string, err error) {
	matches := func(arg, name string) bool {
		return arg == "-"+name || arg == "--"+name
	}

	for i := 0; i < len(args); i++ {
		switch {
		case matches(args[i], pairFlag):
			if i+2 >= len(args) {
				return nil, nil, nil, fmt.Errorf("%s requires NAME and VALUE arguments", pairFlag)
			}
			pairs = append(pairs, VersionPair{Name: args[i+1], Value: args[i+2]})
			i += 2
		case matches(args[i], singleFlag):
			if i+1 >= len(args) {
				return nil, nil, nil, fmt.Errorf("%s requires a NAME argument", singleFlag)
			}
			singles = append(singles, args[i+1])
			i++
		default:
			rest = append(rest, args[i])
		}
	}
	return pairs, singles, rest, nil
}
