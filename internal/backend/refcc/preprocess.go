package refcc

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
)

const (
	mainFile        = "input.cl"
	maxIncludeDepth = 32
)

var (
	includeRe = regexp.MustCompile(`^\s*#\s*include\s*(?:"([^"]+)"|<([^>]+)>)\s*$`)
	errorRe   = regexp.MustCompile(`^\s*#\s*error\b\s*(.*)$`)
	warningRe = regexp.MustCompile(`^\s*#\s*warning\b\s*(.*)$`)
	requireRe = regexp.MustCompile(`^\s*#\s*pragma\s+require\s+(\S+)\s*$`)
	kernelRe  = regexp.MustCompile(`\b(?:__kernel|kernel)\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// unit is a preprocessed translation unit.
type unit struct {
	text    []byte
	kernels []string
	diags   diagnostics
}

// diagnostics accumulates compiler messages in emission order.
type diagnostics struct {
	lines  []string
	errors int
}

func (d *diagnostics) errorf(file string, line int, format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf("%s:%d: error: %s", file, line, fmt.Sprintf(format, args...)))
	d.errors++
}

func (d *diagnostics) warnf(file string, line int, format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf("%s:%d: warning: %s", file, line, fmt.Sprintf(format, args...)))
}

func (d *diagnostics) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

type preprocessor struct {
	dev     *device.Device
	opts    *Options
	headers map[string][]byte
	out     bytes.Buffer
	diags   diagnostics
}

// preprocess expands includes and checks directives for one device.
func preprocess(dev *device.Device, opts *Options, src []byte, headers []backend.Header) *unit {
	p := &preprocessor{
		dev:     dev,
		opts:    opts,
		headers: make(map[string][]byte, len(headers)),
	}
	for _, h := range headers {
		p.headers[h.Name] = h.Source
	}
	p.file(mainFile, src, 0)

	text := p.out.Bytes()
	return &unit{
		text:    text,
		kernels: discoverKernels(text),
		diags:   p.diags,
	}
}

func (p *preprocessor) file(name string, src []byte, depth int) {
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), len(src)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()

		if m := includeRe.FindStringSubmatch(text); m != nil {
			target := m[1] + m[2]
			body, ok := p.headers[target]
			if !ok {
				p.diags.errorf(name, line, "'%s' file not found", target)
				continue
			}
			if depth+1 >= maxIncludeDepth {
				p.diags.errorf(name, line, "#include nested too deeply")
				continue
			}
			p.file(target, body, depth+1)
			continue
		}
		if m := errorRe.FindStringSubmatch(text); m != nil {
			p.diags.errorf(name, line, "%s", m[1])
			continue
		}
		if m := warningRe.FindStringSubmatch(text); m != nil {
			if !p.opts.NoWarnings {
				if p.opts.WarningsAsErrors {
					p.diags.errorf(name, line, "%s [-Werror]", m[1])
				} else {
					p.diags.warnf(name, line, "%s", m[1])
				}
			}
			continue
		}
		if m := requireRe.FindStringSubmatch(text); m != nil {
			if !p.dev.HasExtension(m[1]) {
				p.diags.errorf(name, line, "extension '%s' is not supported by device %s", m[1], p.dev.ID())
			}
			continue
		}
		p.out.WriteString(text)
		p.out.WriteByte('\n')
	}
}

// discoverKernels returns kernel names in definition order, without repeats.
func discoverKernels(text []byte) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range kernelRe.FindAllSubmatch(text, -1) {
		name := string(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
