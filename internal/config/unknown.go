package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSectionKeys maps each config table to its valid keys.
var knownSectionKeys = map[string]map[string]bool{
	"transfers": {"file_threads": true, "concurrent_files": true, "segment_size": true, "metadata_dir": true},
	"auth":      {"tenant": true, "client_id": true},
	"logging":   {"log_level": true},
	"network":   {"connect_timeout": true, "user_agent": true, "endpoint_suffix": true},
}

// knownSectionsList is the sorted list of table names.
var knownSectionsList = sortedKeys(knownSectionKeys)

// knownKeysList flattens every section's keys into one sorted slice, used
// when a key appears at the top level instead of inside its table.
var knownKeysList = func() []string {
	var keys []string
	for _, section := range knownSectionKeys {
		for k := range section {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys
}()

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		// Children of an unknown table are reported through the table itself.
		if len(key) >= 2 {
			if _, ok := knownSectionKeys[key[0]]; !ok {
				continue
			}
		}

		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError describes one undecoded key. Keys inside a known table are
// matched against that table's keys; anything else is matched against the
// table names when it is a table, or against every known key otherwise.
func buildKeyError(key toml.Key) error {
	if len(key) >= 2 {
		if section, ok := knownSectionKeys[key[0]]; ok {
			field := key[1]

			if suggestion := closestMatch(field, sortedKeys(section)); suggestion != "" {
				return fmt.Errorf("unknown config key %q in [%s]: did you mean %q?", field, key[0], suggestion)
			}

			return fmt.Errorf("unknown config key %q in [%s]", field, key[0])
		}
	}

	name := key[0]

	if suggestion := closestMatch(name, knownSectionsList); suggestion != "" {
		return fmt.Errorf("unknown config key %q: did you mean [%s]?", name, suggestion)
	}

	if suggestion := closestMatch(name, knownKeysList); suggestion != "" {
		return fmt.Errorf("unknown config key %q: did you mean %q (inside its table)?", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", strings.Join(key, "."))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
