package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// bindings records how local identifiers relate to the library in one file.
type bindings struct {
	profile    *Profile
	namespaces map[string]string // local -> canonical namespace
	named      map[string]string // local -> canonical name
	foreign    map[string]bool   // imported from some other module
}

func newBindings(p *Profile) *bindings {
	return &bindings{
		profile:    p,
		namespaces: make(map[string]string),
		named:      make(map[string]string),
		foreign:    make(map[string]bool),
	}
}

func (b *bindings) bindNamespace(local, module string) {
	if ns, ok := b.profile.Namespace(module); ok {
		b.namespaces[local] = ns
		return
	}
	b.foreign[local] = true
}

func (b *bindings) bindNamed(local, imported, module string) {
	if ns, ok := b.profile.Namespace(module); ok {
		b.named[local] = b.profile.Qualify(ns, imported)
		return
	}
	b.foreign[local] = true
}

// resolveRoot maps the root identifier of a member chain to its canonical
// prefix and reports whether the prefix is a bare namespace.
func (b *bindings) resolveRoot(root string) (prefix string, namespace bool, ok bool) {
	if ns, found := b.namespaces[root]; found {
		return ns, true, true
	}
	if name, found := b.named[root]; found {
		return name, false, true
	}
	if b.foreign[root] {
		return "", false, false
	}
	if b.profile.IsNamespace(root) {
		return root, true, true
	}
	return "", false, false
}

// resolveChain turns root.a.b into a canonical name.
func (b *bindings) resolveChain(root string, chain []string) (string, bool) {
	prefix, namespace, ok := b.resolveRoot(root)
	if !ok {
		return "", false
	}
	if len(chain) == 0 {
		return prefix, true
	}
	if namespace {
		return b.profile.Qualify(prefix, chain...), true
	}
	return prefix + "." + strings.Join(chain, "."), true
}

// resolveIdent resolves a bare identifier call such as useState().
func (b *bindings) resolveIdent(name string) (string, bool) {
	if canonical, ok := b.named[name]; ok {
		return canonical, true
	}
	if b.foreign[name] {
		return "", false
	}
	if b.profile.Unqualified[name] {
		return name, true
	}
	return "", false
}

// treeWalker extracts call sites from a parsed JavaScript/TypeScript tree.
type treeWalker struct {
	src   []byte
	file  string
	binds *bindings
	sites []CallSite
}

func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "'\"`")
}

// collectBindings is the first pass: imports and require() bindings.
func (w *treeWalker) collectBindings(root *sitter.Node) {
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			w.collectImport(n)
			return false
		case "variable_declarator":
			w.collectDeclarator(n)
		}
		return true
	})
}

func (w *treeWalker) collectImport(n *sitter.Node) {
	source := n.ChildByFieldName("source")
	if source == nil {
		return
	}
	module := unquote(source.Content(w.src))

	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				w.binds.bindNamespace(part.Content(w.src), module)
			case "namespace_import":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					if id := part.NamedChild(k); id.Type() == "identifier" {
						w.binds.bindNamespace(id.Content(w.src), module)
					}
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					nameNode := spec.ChildByFieldName("name")
					if nameNode == nil {
						continue
					}
					imported := unquote(nameNode.Content(w.src))
					local := imported
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = alias.Content(w.src)
					}
					w.binds.bindNamed(local, imported, module)
				}
			}
		}
	}
}

// collectDeclarator handles `const X = require('m')`, `const { a } =
// require('m')` and `const { a } = React`.
func (w *treeWalker) collectDeclarator(n *sitter.Node) {
	name := n.ChildByFieldName("name")
	value := n.ChildByFieldName("value")
	if name == nil || value == nil {
		return
	}

	var module, ns string
	switch value.Type() {
	case "call_expression":
		m, ok := requireModule(value, w.src)
		if !ok {
			return
		}
		module = m
	case "identifier":
		prefix, isNS, ok := w.binds.resolveRoot(value.Content(w.src))
		if !ok || !isNS {
			return
		}
		ns = prefix
	default:
		return
	}

	switch name.Type() {
	case "identifier":
		if module != "" {
			w.binds.bindNamespace(name.Content(w.src), module)
		}
	case "object_pattern":
		for i := 0; i < int(name.NamedChildCount()); i++ {
			prop := name.NamedChild(i)
			var imported, local string
			switch prop.Type() {
			case "shorthand_property_identifier_pattern":
				imported = prop.Content(w.src)
				local = imported
			case "pair_pattern":
				key := prop.ChildByFieldName("key")
				val := prop.ChildByFieldName("value")
				if key == nil || val == nil || val.Type() != "identifier" {
					continue
				}
				imported = unquote(key.Content(w.src))
				local = val.Content(w.src)
			default:
				continue
			}
			if module != "" {
				w.binds.bindNamed(local, imported, module)
			} else {
				w.binds.named[local] = w.binds.profile.Qualify(ns, imported)
			}
		}
	}
}

// collectUsages is the second pass over calls, class heritage and JSX names.
func (w *treeWalker) collectUsages(root *sitter.Node) {
	walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil {
				w.addExpression(fn)
			}
		case "class_heritage":
			if target := heritageTarget(n); target != nil {
				w.addExpression(target)
			}
		case "jsx_opening_element", "jsx_self_closing_element":
			if name := n.ChildByFieldName("name"); name != nil {
				w.addDotted(name)
			}
		}
		return true
	})
}

func (w *treeWalker) addExpression(n *sitter.Node) {
	switch n.Type() {
	case "identifier":
		if name, ok := w.binds.resolveIdent(n.Content(w.src)); ok {
			w.emit(name, n)
		}
	case "member_expression":
		root, chain, ok := flattenMember(n, w.src)
		if !ok {
			return
		}
		switch root.Type() {
		case "identifier":
			if name, ok := w.binds.resolveChain(root.Content(w.src), chain); ok {
				w.emit(name, n)
			}
		case "call_expression":
			// require('react-dom').render(...) without a binding.
			module, ok := requireModule(root, w.src)
			if !ok {
				return
			}
			if ns, ok := w.binds.profile.Namespace(module); ok {
				w.emit(w.binds.profile.Qualify(ns, chain...), n)
			}
		}
	}
}

// requireModule returns the module of a require('<module>') call.
func requireModule(n *sitter.Node, src []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Type() != "identifier" || fn.Content(src) != "require" {
		return "", false
	}
	if args.NamedChildCount() == 0 || args.NamedChild(0).Type() != "string" {
		return "", false
	}
	return unquote(args.NamedChild(0).Content(src)), true
}

// addDotted handles JSX element names, which older grammars expose as
// nested_identifier rather than member_expression.
func (w *treeWalker) addDotted(n *sitter.Node) {
	parts := strings.Split(n.Content(w.src), ".")
	if len(parts) < 2 {
		return
	}
	if name, ok := w.binds.resolveChain(parts[0], parts[1:]); ok {
		w.emit(name, n)
	}
}

func (w *treeWalker) emit(name string, n *sitter.Node) {
	start := n.StartPoint()
	w.sites = append(w.sites, CallSite{
		Name:   name,
		File:   w.file,
		Line:   int(start.Row) + 1,
		Column: int(start.Column) + 1,
	})
}

// flattenMember turns a.b.c into ("a", ["b", "c"]). Computed access and
// non-identifier roots are rejected.
func flattenMember(n *sitter.Node, src []byte) (*sitter.Node, []string, bool) {
	var chain []string
	cur := n
	for cur.Type() == "member_expression" {
		prop := cur.ChildByFieldName("property")
		obj := cur.ChildByFieldName("object")
		if prop == nil || obj == nil || prop.Type() != "property_identifier" {
			return nil, nil, false
		}
		chain = append([]string{prop.Content(src)}, chain...)
		cur = obj
	}
	if len(chain) == 0 {
		return nil, nil, false
	}
	return cur, chain, true
}

// heritageTarget finds the superclass expression. JavaScript puts it
// directly under class_heritage; TypeScript wraps it in extends_clause.
func heritageTarget(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "extends_clause" {
			if v := child.ChildByFieldName("value"); v != nil {
				return v
			}
			if child.NamedChildCount() > 0 {
				return child.NamedChild(0)
			}
			return nil
		}
		return child
	}
	return nil
}
