package venv

import (
	"os"
	"strings"
)

// Activation is a namespace bound for package operations.
type Activation struct {
	Root        string
	Interpreter string
	Env         []string
}

// activatedEnv mirrors what the venv activate script does to the environment.
func activatedEnv(base []string, root string, bin string) []string {
	out := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch strings.ToUpper(key) {
		case "PYTHONHOME", "VIRTUAL_ENV":
			continue
		case "PATH":
			path = value
			continue
		}
		out = append(out, kv)
	}
	if path == "" {
		path = bin
	} else {
		path = bin + string(os.PathListSeparator) + path
	}
	out = append(out, "VIRTUAL_ENV="+root, "PATH="+path)
	return out
}

// Lookup returns the value of key in the activated environment.
func (a *Activation) Lookup(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, kv := range a.Env {
		k, v, _ := strings.Cut(kv, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}
