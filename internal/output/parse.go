package output

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseTolerant extracts a JSON object from raw model output.
// Recovery stages, in order: direct parse, fenced code block,
// balanced-brace extraction, truncated-object repair. recovered is
// true when anything beyond the direct parse was needed.
func ParseTolerant(raw string) (value map[string]interface{}, recovered bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false, fmt.Errorf("empty payload")
	}

	if v := tryObject(trimmed); v != nil {
		return v, false, nil
	}

	for _, m := range fencedBlockRe.FindAllStringSubmatch(trimmed, -1) {
		if v := tryObject(strings.TrimSpace(m[1])); v != nil {
			return v, true, nil
		}
	}

	if v := extractBalanced(trimmed); v != nil {
		return v, true, nil
	}

	if v := repairTruncated(trimmed); v != nil {
		return v, true, nil
	}

	return nil, false, fmt.Errorf("no JSON object found in payload")
}

func tryObject(s string) map[string]interface{} {
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// extractBalanced scans for brace-balanced candidates embedded in
// surrounding prose and returns the first one that parses.
func extractBalanced(s string) map[string]interface{} {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					if v := tryObject(s[start : i+1]); v != nil {
						return v
					}
					i = len(s) // next start position
				}
			}
		}
	}
	return nil
}

// repairTruncated closes an object cut off mid-stream: an unclosed
// string gets its quote, open braces get closed, and trailing partial
// members are dropped until a prefix parses. Produces the largest
// valid prefix of the intended object.
func repairTruncated(s string) map[string]interface{} {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return nil
	}
	fragment := strings.TrimRight(s[start:], " \t\n\r")

	for len(fragment) > 1 {
		depth, inString := scanOpenState(fragment)
		if depth <= 0 {
			return nil
		}
		attempt := fragment
		if inString {
			attempt += `"`
		}
		attempt += strings.Repeat("}", depth)
		if v := tryObject(attempt); v != nil {
			return v
		}
		// Drop the trailing partial member and retry.
		idx := strings.LastIndexByte(fragment[:len(fragment)-1], ',')
		if idx <= 0 {
			return nil
		}
		fragment = strings.TrimRight(fragment[:idx], " \t\n\r")
	}
	return nil
}

// scanOpenState reports the unclosed brace depth and whether the scan
// ends inside a string literal.
func scanOpenState(s string) (depth int, inString bool) {
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
		}
	}
	return depth, inString
}
