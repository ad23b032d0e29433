// Package dotenv reads .env files into the process environment.
package dotenv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile loads KEY=VALUE pairs from path into the environment. Variables
// that are already set win, so deploy-time values override a checked-in
// .env. A missing file is not an error.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file %q: %w", path, err)
	}
	defer file.Close()

	pairs, err := Parse(file)
	if err != nil {
		return fmt.Errorf("parse env file %q: %w", path, err)
	}
	for _, p := range pairs {
		if _, exists := os.LookupEnv(p.Key); exists {
			continue
		}
		if err := os.Setenv(p.Key, p.Value); err != nil {
			return fmt.Errorf("set env %q from %q: %w", p.Key, path, err)
		}
	}
	return nil
}

// Pair is one assignment, in file order.
type Pair struct {
	Key   string
	Value string
}

// Parse reads dotenv syntax: blank lines and # comments are skipped, an
// optional "export " prefix is dropped, single quotes are literal, double
// quotes expand \n, and unquoted values end at " #".
func Parse(r io.Reader) ([]Pair, error) {
	var out []Pair
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, raw, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out = append(out, Pair{Key: key, Value: value(strings.TrimSpace(raw))})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func value(raw string) string {
	if len(raw) >= 2 {
		switch {
		case raw[0] == '"' && raw[len(raw)-1] == '"':
			return strings.ReplaceAll(raw[1:len(raw)-1], `\n`, "\n")
		case raw[0] == '\'' && raw[len(raw)-1] == '\'':
			return raw[1 : len(raw)-1]
		}
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw
}
