package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every element-set validation failure.
var ErrMalformed = errors.New("malformed element set")

const lineLength = 69

// ParseElements validates a name and two element lines and returns the parsed set.
// Lines are trimmed before checking. Validation covers line length, line numbers,
// matching catalog numbers, modulo-10 checksums, and the epoch field.
func ParseElements(name, line1, line2 string) (Elements, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if err := checkLine(line1, '1'); err != nil {
		return Elements{}, fmt.Errorf("%w: line 1: %v", ErrMalformed, err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return Elements{}, fmt.Errorf("%w: line 2: %v", ErrMalformed, err)
	}

	// Catalog number is cols 3-7 on both lines.
	catStr := strings.TrimSpace(line1[2:7])
	catalog, err := strconv.Atoi(catStr)
	if err != nil {
		return Elements{}, fmt.Errorf("%w: invalid catalog number %q", ErrMalformed, catStr)
	}
	if cat2 := strings.TrimSpace(line2[2:7]); cat2 != catStr {
		return Elements{}, fmt.Errorf("%w: catalog number mismatch %q vs %q", ErrMalformed, catStr, cat2)
	}

	// Epoch is cols 19-32.
	epochStr := strings.TrimSpace(line1[18:32])
	epoch, err := parseEpoch(epochStr)
	if err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Elements{
		Name:          strings.TrimSpace(name),
		CatalogNumber: catalog,
		Epoch:         epoch,
		Line1:         line1,
		Line2:         line2,
	}, nil
}

func checkLine(line string, number byte) error {
	if len(line) != lineLength {
		return fmt.Errorf("length %d, expected %d", len(line), lineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("must start with %q", string([]byte{number, ' '}))
	}
	want := line[lineLength-1]
	if want < '0' || want > '9' {
		return fmt.Errorf("checksum column is %q, not a digit", want)
	}
	if got := Checksum(line); got != int(want-'0') {
		return fmt.Errorf("checksum %d, line says %c", got, want)
	}
	return nil
}

// Checksum computes the modulo-10 checksum over the first 68 columns:
// digits count their value, minus signs count 1, everything else 0.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < lineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// Parse reads 3-line element sets from r (name line followed by the two element lines).
// Malformed entries are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element data: %w", err)
	}

	var entries []Elements
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		// Resynchronise on the next line when this is not a name/1/2 triplet.
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed element entry", "line_index", i, "name", name)
			i++
			continue
		}

		e, err := ParseElements(name, line1, line2)
		if err != nil {
			logger.Warn("skipping invalid element entry", "name", name, "error", err)
			i += 3
			continue
		}
		entries = append(entries, e)
		i += 3
	}

	return entries, nil
}

// parseEpoch converts an epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	dur := time.Duration((dayOfYear - 1) * float64(24*time.Hour))
	return t.Add(dur), nil
}
