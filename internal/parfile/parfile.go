// Package parfile edits third-party solver control files of the form
// `KEY = value`, one entry per line (the SPECFEM Par_file layout). These
// files are hand-maintained by operators, so edits are line-oriented
// patches: only the value token of the matched line changes, every other
// byte — alignment, casing, trailing comments — is preserved exactly.
package parfile

import (
	"fmt"
	"os"
	"strings"
)

// Get returns the value of key in the file at path. Trailing comments
// (anything after '#') are stripped from the returned value.
func Get(path, key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if val, ok := match(line, key); ok {
			return val, nil
		}
	}
	return "", fmt.Errorf("%s: key %q not found", path, key)
}

// Set replaces the value token on the line declaring key, leaving the rest
// of the line and the file untouched. It fails if the key is absent rather
// than appending, since an unknown key usually means the wrong file.
func Set(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	found := false
	for i, line := range lines {
		if _, ok := match(line, key); !ok {
			continue
		}
		lines[i] = patch(line, value)
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%s: key %q not found", path, key)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), info.Mode().Perm())
}

// match reports whether line declares key and returns its value.
func match(line, key string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, key) {
		return "", false
	}
	rest := trimmed[len(key):]
	trimmedRest := strings.TrimLeft(rest, " \t")
	if !strings.HasPrefix(trimmedRest, "=") {
		return "", false
	}
	val := strings.TrimPrefix(trimmedRest, "=")
	if i := strings.Index(val, "#"); i >= 0 {
		val = val[:i]
	}
	return strings.TrimSpace(val), true
}

// patch rewrites only the value token of a matched line, keeping the key,
// the spacing around '=', and any trailing comment.
func patch(line, value string) string {
	eq := strings.Index(line, "=")
	prefix := line[:eq+1]
	rest := line[eq+1:]

	// Preserve the spacing between '=' and the old value.
	pad := len(rest) - len(strings.TrimLeft(rest, " \t"))
	prefix += rest[:pad]
	rest = rest[pad:]

	suffix := ""
	if i := strings.Index(rest, "#"); i >= 0 {
		old := strings.TrimRight(rest[:i], " \t")
		// Keep the comment column stable when the new value fits.
		gap := len(rest[:i]) - len(old)
		if delta := len(old) - len(value); delta > 0 {
			gap += delta
		}
		suffix = strings.Repeat(" ", gap) + rest[i:]
	}
	return prefix + value + suffix
}
