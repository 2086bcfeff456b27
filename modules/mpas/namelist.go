package mpas

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Namelist holds the options of a Fortran namelist file such as mpaso_in,
// keyed by option name across all groups.
type Namelist map[string]string

// ReadNamelist parses the "name = value" lines of a namelist file. Group
// markers, comments and blank lines are skipped and quotes are stripped.
func ReadNamelist(path string) (Namelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	nl := Namelist{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '!' || line[0] == '&' || line[0] == '/' {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value, _, _ = strings.Cut(value, "!")
		value = strings.Trim(strings.TrimSpace(value), `'"`)
		nl[strings.TrimSpace(name)] = value
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("namelist %s: %w", path, err)
	}
	return nl, nil
}

// Float returns option name as a number. Fortran double exponents such as
// 1.0d3 are accepted.
func (nl Namelist) Float(name string) (float64, error) {
	raw, ok := nl[name]
	if !ok {
		return 0, fmt.Errorf("namelist has no %s", name)
	}
	v, err := strconv.ParseFloat(strings.NewReplacer("d", "e", "D", "e").Replace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("namelist option %s: %w", name, err)
	}
	return v, nil
}
