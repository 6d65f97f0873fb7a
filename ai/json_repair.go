// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

// repairJSON attempts to fix common JSON formatting issues from LLM responses.
// It specifically handles missing opening quotes before keys in JSON objects.
func repairJSON(s string) string {
	// Pattern: after { or , followed by optional whitespace, then a word followed by ":
	// Example: `, name":` -> `, "name":`
	src := []rune(s)
	fixed := make([]rune, 0, len(src)+16)

	i := 0
	for i < len(src) {
		ch := src[i]
		fixed = append(fixed, ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		for i < len(src) && isJSONSpace(src[i]) {
			fixed = append(fixed, src[i])
			i++
		}
		if i >= len(src) || src[i] == '"' || !isLetter(src[i]) {
			continue
		}

		keyStart := i
		for i < len(src) && (isLetter(src[i]) || src[i] == '_') {
			i++
		}
		if i+1 < len(src) && src[i] == '"' && src[i+1] == ':' {
			// Closing quote is already present at src[i]
			fixed = append(fixed, '"')
		}
		fixed = append(fixed, src[keyStart:i]...)
	}

	return string(fixed)
}

func isJSONSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
