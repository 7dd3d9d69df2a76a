package compiler

import (
	"fmt"
	"sort"

	"go.starlark.net/resolve"
	"go.starlark.net/syntax"

	"github.com/stackb/memcompile/pkg/diagnostic"
)

// lintFile reports the non-fatal findings of a resolved file.
func lintFile(name string, f *syntax.File, report func(diagnostic.Diagnostic)) {
	for _, ident := range unusedLoadBindings(f) {
		report(diagnosticAt(diagnostic.MandatoryWarning, name, ident.NamePos,
			fmt.Sprintf("unused load binding: %s", ident.Name)))
	}
	for _, stmt := range f.Stmts {
		if pos, ok := topLevelPrint(stmt); ok {
			report(diagnosticAt(diagnostic.Note, name, pos, "print call at top level"))
		}
	}
}

// unusedLoadBindings returns the local names introduced by load statements
// that are never referenced elsewhere in the file.
func unusedLoadBindings(f *syntax.File) []*syntax.Ident {
	// load bindings captured by a function are reached through a free
	// variable binding that shares the First identifier
	unused := make(map[*syntax.Ident]bool)
	declared := make(map[*syntax.Ident]bool)
	for _, stmt := range f.Stmts {
		load, ok := stmt.(*syntax.LoadStmt)
		if !ok {
			continue
		}
		for _, ident := range load.From {
			declared[ident] = true
		}
		for _, ident := range load.To {
			declared[ident] = true
			unused[ident] = true
		}
	}
	if len(unused) == 0 {
		return nil
	}

	syntax.Walk(f, func(n syntax.Node) bool {
		ident, ok := n.(*syntax.Ident)
		if !ok || declared[ident] {
			return true
		}
		if b, ok := ident.Binding.(*resolve.Binding); ok && b.First != nil {
			delete(unused, b.First)
		}
		return true
	})

	idents := make([]*syntax.Ident, 0, len(unused))
	for ident := range unused {
		idents = append(idents, ident)
	}
	sort.Slice(idents, func(i, j int) bool {
		a, b := idents[i].NamePos, idents[j].NamePos
		return a.Line < b.Line || (a.Line == b.Line && a.Col < b.Col)
	})
	return idents
}

// selfCall is a call by which a top-level function calls itself.
type selfCall struct {
	fn  string
	pos syntax.Position
}

// selfCalls returns the direct recursive calls of the top-level functions of
// a resolved file, in source order.
func selfCalls(f *syntax.File) []selfCall {
	var calls []selfCall
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok || def.Name.Binding == nil {
			continue
		}
		self := def.Name.Binding
		for _, body := range def.Body {
			syntax.Walk(body, func(n syntax.Node) bool {
				call, ok := n.(*syntax.CallExpr)
				if !ok {
					return true
				}
				if fn, ok := call.Fn.(*syntax.Ident); ok && fn.Binding == self {
					calls = append(calls, selfCall{fn: def.Name.Name, pos: fn.NamePos})
				}
				return true
			})
		}
	}
	return calls
}

func topLevelPrint(stmt syntax.Stmt) (syntax.Position, bool) {
	expr, ok := stmt.(*syntax.ExprStmt)
	if !ok {
		return syntax.Position{}, false
	}
	call, ok := expr.X.(*syntax.CallExpr)
	if !ok {
		return syntax.Position{}, false
	}
	fn, ok := call.Fn.(*syntax.Ident)
	if !ok || fn.Name != "print" {
		return syntax.Position{}, false
	}
	return fn.NamePos, true
}

func diagnosticAt(kind diagnostic.Kind, source string, pos syntax.Position, msg string) diagnostic.Diagnostic {
	return diagnostic.Diagnostic{
		Kind:    kind,
		Source:  source,
		Line:    int(pos.Line),
		Column:  int(pos.Col),
		Message: msg,
	}
}
