/*
	Copyright (c) 2024 Stratux Contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	file.go: Flightplans uploaded as JSON files.
*/

package flightplan

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates the flightplan at path.
func Load(path string) (*Flightplan, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read flightplan %s: %w", path, err)
	}
	var f Flightplan
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("can't read flightplan %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flightplan %s: %w", path, err)
	}
	return &f, nil
}
