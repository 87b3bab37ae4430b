// Package env resolves ${VAR} references in configuration values.
package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env layers the process environment over variables loaded from env files.
type Env struct {
	Var Var // variables from env files (K->V)
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			base[k] = v
		}
	}
	e.env = base
}

// Set sets a file variable K=V.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Lookup returns the value of k. The process environment wins over file variables.
func (e *Env) Lookup(k string) (string, bool) {
	if e.env == nil {
		e.FromOS()
	}
	if v, ok := e.env[k]; ok {
		return v, true
	}
	v, ok := e.Var[k]
	return v, ok
}

// Expand replaces ${VAR} references in s (no recursion). Unknown references and a
// bare '$' are kept verbatim so secrets containing '$' survive.
func (e *Env) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := e.Lookup(name); ok && name != "" {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
}
