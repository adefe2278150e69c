package execengine

import (
	"encoding/json"
	"os"
)

// writeJSONFile marshals v as indented JSON with a trailing newline, matching
// the on-disk format convention ("all JSON files are UTF-8 with a trailing
// newline") that every plan document follows.
func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
