package refcc

import (
	"fmt"
	"strings"
)

// Options are the parsed build, compile or link options.
type Options struct {
	Defines           map[string]string
	IncludeDirs       []string
	Std               string
	NoWarnings        bool
	WarningsAsErrors  bool
	CreateLibrary     bool
	EnableLinkOptions bool
}

// ParseOptions tokenizes and validates an option string.
func ParseOptions(raw string) (*Options, error) {
	opts := &Options{Defines: map[string]string{}}
	fields := strings.Fields(raw)

	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		switch {
		case tok == "-D" || tok == "-I":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("error: argument to '%s' is missing (expected 1 value)", tok)
			}
			i++
			opts.apply(tok, fields[i])
		case strings.HasPrefix(tok, "-D") || strings.HasPrefix(tok, "-I"):
			opts.apply(tok[:2], tok[2:])
		case strings.HasPrefix(tok, "-cl-std="):
			std := strings.TrimPrefix(tok, "-cl-std=")
			if !validStd(std) {
				return nil, fmt.Errorf("error: invalid value '%s' in '%s'", std, tok)
			}
			opts.Std = std
		case tok == "-w":
			opts.NoWarnings = true
		case tok == "-Werror":
			opts.WarningsAsErrors = true
		case tok == "-create-library":
			opts.CreateLibrary = true
		case tok == "-enable-link-options":
			opts.EnableLinkOptions = true
		case strings.HasPrefix(tok, "-"):
			return nil, fmt.Errorf("error: unknown argument: '%s'", tok)
		default:
			return nil, fmt.Errorf("error: no such option argument: '%s'", tok)
		}
	}
	return opts, nil
}

func (o *Options) apply(flag, value string) {
	switch flag {
	case "-D":
		name, val, found := strings.Cut(value, "=")
		if !found {
			val = "1"
		}
		o.Defines[name] = val
	case "-I":
		o.IncludeDirs = append(o.IncludeDirs, value)
	}
}

func validStd(std string) bool {
	switch std {
	case "CL1.0", "CL1.1", "CL1.2", "CL2.0", "CL3.0":
		return true
	}
	return false
}
