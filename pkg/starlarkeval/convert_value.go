/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// This file contains functions to convert runtime values to syntax.
// Input: values from go.starlark.net/starlark
// Output: AST from github.com/bazelbuild/buildtools/build

package starlarkeval

import (
	"sort"
	"strings"

	"github.com/bazelbuild/buildtools/build"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ConvValue converts a value to an expression that evaluates to an equal
// value.  Values without a literal form, such as functions, become an
// identifier holding their string representation.
func ConvValue(value starlark.Value) build.Expr {
	switch t := value.(type) {
	case starlark.NoneType:
		return &build.Ident{Name: "None"}
	case starlark.Bool:
		if t {
			return &build.Ident{Name: "True"}
		}
		return &build.Ident{Name: "False"}
	case starlark.Int:
		return &build.LiteralExpr{Token: t.String()}
	case starlark.Float:
		return &build.LiteralExpr{Token: t.String()}
	case starlark.String:
		return &build.StringExpr{Value: string(t)}
	case *starlark.List:
		list := make([]build.Expr, t.Len())
		for i := 0; i < t.Len(); i++ {
			list[i] = ConvValue(t.Index(i))
		}
		return &build.ListExpr{List: list}
	case starlark.Tuple:
		list := make([]build.Expr, len(t))
		for i, v := range t {
			list[i] = ConvValue(v)
		}
		return &build.TupleExpr{List: list, ForceCompact: true}
	case *starlark.Dict:
		list := make([]*build.KeyValueExpr, 0, t.Len())
		for _, item := range t.Items() {
			list = append(list, &build.KeyValueExpr{
				Key:   ConvValue(item[0]),
				Value: ConvValue(item[1]),
			})
		}
		return &build.DictExpr{List: list}
	case *starlarkstruct.Struct:
		return convAttrs("struct", t)
	case *starlarkstruct.Module:
		call := convAttrs("module", t)
		call.List = append([]build.Expr{&build.StringExpr{Value: t.Name}}, call.List...)
		return call
	}
	return &build.Ident{Name: value.String()}
}

// FormatValue renders a value as single-line Starlark source.  The value is
// printed as a .bzl statement since BUILD formatting splits sequences with
// more than one element across lines.
func FormatValue(value starlark.Value) string {
	f := &build.File{Type: build.TypeDefault, Stmt: []build.Expr{ConvValue(value)}}
	return strings.TrimSuffix(build.FormatString(f), "\n")
}

func convAttrs(fn string, v starlark.HasAttrs) *build.CallExpr {
	names := v.AttrNames()
	sort.Strings(names)
	call := &build.CallExpr{X: &build.Ident{Name: fn}, ForceCompact: true}
	for _, name := range names {
		attr, err := v.Attr(name)
		if err != nil || attr == nil {
			continue
		}
		call.List = append(call.List, &build.AssignExpr{
			LHS: &build.Ident{Name: name},
			Op:  "=",
			RHS: ConvValue(attr),
		})
	}
	return call
}
