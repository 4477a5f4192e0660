package config

import (
	"strings"
)

// StripJSONComments strips // line and /* */ block comments so the
// codeloom.jsonc config can be handed to encoding/json. Comment markers
// inside string literals are left alone.
func StripJSONComments(data []byte) []byte {
	input := string(data)
	var result strings.Builder
	result.Grow(len(input))

	i := 0
	inString := false
	for i < len(input) {
		// Unescaped quotes toggle string state.
		if input[i] == '"' && (i == 0 || input[i-1] != '\\') {
			inString = !inString
			result.WriteByte(input[i])
			i++
			continue
		}

		if !inString {
			// Line comment runs to end of line; the newline survives.
			if i+1 < len(input) && input[i] == '/' && input[i+1] == '/' {
				for i < len(input) && input[i] != '\n' {
					i++
				}
				continue
			}

			// Block comment runs to the closing marker.
			if i+1 < len(input) && input[i] == '/' && input[i+1] == '*' {
				i += 2
				for i+1 < len(input) {
					if input[i] == '*' && input[i+1] == '/' {
						i += 2
						break
					}
					i++
				}
				continue
			}
		}

		result.WriteByte(input[i])
		i++
	}

	return []byte(result.String())
}
