package extractor

import (
	"regexp"
	"strings"
)

const identPattern = `[A-Za-z_$][\w$]*`

var (
	reImportDefault   = regexp.MustCompile(`^\s*import\s+(?:type\s+)?(` + identPattern + `)\s*(?:,\s*(?:\{[^}]*\}|\*\s+as\s+` + identPattern + `))?\s+from\s+['"]([^'"]+)['"]`)
	reImportNamespace = regexp.MustCompile(`import\s+(?:` + identPattern + `\s*,\s*)?\*\s+as\s+(` + identPattern + `)\s+from\s+['"]([^'"]+)['"]`)
	reImportNamed     = regexp.MustCompile(`import\s+(?:type\s+)?(?:` + identPattern + `\s*,\s*)?\{([^}]*)\}\s*from\s+['"]([^'"]+)['"]`)
	reRequireDefault  = regexp.MustCompile(`(?:const|let|var)\s+(` + identPattern + `)\s*=\s*require\(\s*['"]([^'"]+)['"]\s*\)`)
	reRequireNamed    = regexp.MustCompile(`(?:const|let|var)\s+\{([^}]*)\}\s*=\s*require\(\s*['"]([^'"]+)['"]\s*\)`)

	reMemberCall = regexp.MustCompile(`(` + identPattern + `)((?:\s*\??\.\s*` + identPattern + `)+)\s*\(`)
	reIdentCall  = regexp.MustCompile(`(` + identPattern + `)\s*\(`)
	reHeritage   = regexp.MustCompile(`\bextends\s+(` + identPattern + `(?:\.` + identPattern + `)*)`)
	reJSXMember  = regexp.MustCompile(`<\s*(` + identPattern + `(?:\.` + identPattern + `)+)[\s/>]`)
)

// scanLines is the degraded path: a line-oriented pattern scan over the
// same lexicon as the tree walk. Matches inside comments and strings are
// not filtered out.
func scanLines(p *Profile, file string, src []byte) []CallSite {
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	binds := newBindings(p)

	for _, line := range lines {
		for _, m := range reImportDefault.FindAllStringSubmatch(line, -1) {
			binds.bindNamespace(m[1], m[2])
		}
		for _, m := range reImportNamespace.FindAllStringSubmatch(line, -1) {
			binds.bindNamespace(m[1], m[2])
		}
		for _, m := range reRequireDefault.FindAllStringSubmatch(line, -1) {
			binds.bindNamespace(m[1], m[2])
		}
		for _, m := range reImportNamed.FindAllStringSubmatch(line, -1) {
			bindSpecifiers(binds, m[1], m[2], " as ")
		}
		for _, m := range reRequireNamed.FindAllStringSubmatch(line, -1) {
			bindSpecifiers(binds, m[1], m[2], ":")
		}
	}

	var sites []CallSite
	add := func(name string, line, col int) {
		sites = append(sites, CallSite{Name: name, File: file, Line: line, Column: col})
	}

	for i, line := range lines {
		lineNo := i + 1
		if isImportLine(line) {
			continue
		}
		for _, idx := range reMemberCall.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, idx[0]) {
				continue
			}
			root := line[idx[2]:idx[3]]
			chain := splitChain(line[idx[4]:idx[5]])
			if name, ok := binds.resolveChain(root, chain); ok {
				add(name, lineNo, idx[0]+1)
			}
		}
		for _, idx := range reIdentCall.FindAllStringSubmatchIndex(line, -1) {
			if !boundaryBefore(line, idx[0]) {
				continue
			}
			if name, ok := binds.resolveIdent(line[idx[2]:idx[3]]); ok {
				add(name, lineNo, idx[0]+1)
			}
		}
		for _, idx := range reHeritage.FindAllStringSubmatchIndex(line, -1) {
			parts := strings.Split(line[idx[2]:idx[3]], ".")
			var name string
			var ok bool
			if len(parts) == 1 {
				name, ok = binds.resolveIdent(parts[0])
			} else {
				name, ok = binds.resolveChain(parts[0], parts[1:])
			}
			if ok {
				add(name, lineNo, idx[2]+1)
			}
		}
		for _, idx := range reJSXMember.FindAllStringSubmatchIndex(line, -1) {
			parts := strings.Split(line[idx[2]:idx[3]], ".")
			if name, ok := binds.resolveChain(parts[0], parts[1:]); ok {
				add(name, lineNo, idx[2]+1)
			}
		}
	}
	return sites
}

func bindSpecifiers(binds *bindings, list, module, sep string) {
	for _, spec := range strings.Split(list, ",") {
		spec = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(spec), "type "))
		if spec == "" {
			continue
		}
		imported, local := spec, spec
		if i := strings.Index(spec, sep); i >= 0 {
			imported = strings.TrimSpace(spec[:i])
			local = strings.TrimSpace(spec[i+len(sep):])
		}
		binds.bindNamed(local, unquote(imported), module)
	}
}

func isImportLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export ") && strings.Contains(trimmed, " from ")
}

// boundaryBefore reports whether the match at i starts a fresh identifier
// rather than continuing one or following a member access.
func boundaryBefore(line string, i int) bool {
	if i == 0 {
		return true
	}
	c := line[i-1]
	return !(c == '_' || c == '$' || c == '.' ||
		c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

func splitChain(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ".") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "?"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
