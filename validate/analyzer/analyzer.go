// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package analyzer defines an analysis pass that checks annotated call target
// types for duplicate exposed method names.
//
// A type is a call target if its declaration carries an expose directive:
//
//	//chainrpc:expose [exclude=<regexp>] [static]
//	type Lobby struct { ... }
//
// The members of a target type are its methods, declared in any file of the
// package, and the top-level functions marked as its static methods:
//
//	//chainrpc:static Lobby
//	func openLobby(...) { ... }
//
// A member is exposed under its Go name unless it carries a name directive:
//
//	//chainrpc:name players
//	func (l *Lobby) Players(...) { ... }
//
// Static members are exposed only if the type directive says "static", and
// members whose exposed name matches the exclude pattern in full are not
// exposed. The analyzer reports each type that exposes two members with the
// same name.
package analyzer

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"github.com/gamefleet/chainrpc/validate"
	"golang.org/x/tools/go/analysis"
)

// Analyzer reports annotated types with duplicate exposed method names.
var Analyzer = &analysis.Analyzer{
	Name: "chainrpcexpose",
	Doc:  "check that the exposed method names of chainrpc target types are unique",
	URL:  "https://pkg.go.dev/github.com/gamefleet/chainrpc/validate/analyzer",
	Run:  run,
}

const (
	directiveExpose = "//chainrpc:expose"
	directiveStatic = "//chainrpc:static"
	directiveName   = "//chainrpc:name"
)

// target is an annotated type and the members found for it.
type target struct {
	pos     token.Pos
	spec    validate.Spec
	members []validate.Member
}

func run(pass *analysis.Pass) (any, error) {
	targets := make(map[string]*target)
	var order []string

	// Find the annotated types first, since methods may precede their type.
	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, s := range gd.Specs {
				ts := s.(*ast.TypeSpec)
				args, ok := directive(ts.Doc, directiveExpose)
				if !ok && len(gd.Specs) == 1 {
					args, ok = directive(gd.Doc, directiveExpose)
				}
				if !ok {
					continue
				}
				spec, err := parseExpose(ts.Name.Name, args)
				if err != nil {
					pass.Reportf(ts.Name.Pos(), "%v", err)
					continue
				}
				targets[ts.Name.Name] = &target{pos: ts.Name.Pos(), spec: spec}
				order = append(order, ts.Name.Name)
			}
		}
	}

	for _, file := range pass.Files {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			name := fd.Name.Name
			if alt, ok := directive(fd.Doc, directiveName); ok {
				if alt == "" || strings.ContainsAny(alt, " \t") {
					pass.Reportf(fd.Name.Pos(), "invalid exposed name %q for %s", alt, fd.Name.Name)
					continue
				}
				name = alt
			}

			if fd.Recv != nil {
				if t := targets[receiverName(fd.Recv)]; t != nil {
					t.members = append(t.members, validate.Member{Name: name})
				}
				continue
			}
			typeName, ok := directive(fd.Doc, directiveStatic)
			if !ok {
				continue
			}
			t := targets[typeName]
			if t == nil {
				pass.Reportf(fd.Name.Pos(), "static function %s names unannotated type %s", fd.Name.Name, typeName)
				continue
			}
			t.members = append(t.members, validate.Member{Name: name, Static: true})
		}
	}

	var c validate.Collector
	for _, name := range order {
		t := targets[name]
		if err := c.Add(t.spec, t.members...); err != nil {
			pass.Reportf(t.pos, "%v", err)
			delete(targets, name)
		}
	}
	if err := c.Check(); err != nil {
		for _, dup := range err.(*validate.DuplicateMethodNameError).Collisions {
			if t := targets[dup.Type]; t != nil {
				pass.Reportf(t.pos, "%s", dup)
			}
		}
	}
	return nil, nil
}

// directive reports the arguments of the named directive in cg, if present.
func directive(cg *ast.CommentGroup, name string) (string, bool) {
	if cg == nil {
		return "", false
	}
	for _, c := range cg.List {
		rest, ok := strings.CutPrefix(c.Text, name)
		if !ok {
			continue
		}
		if rest == "" {
			return "", true
		} else if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// parseExpose parses the arguments of an expose directive for typeName.
func parseExpose(typeName, args string) (validate.Spec, error) {
	spec := validate.Spec{TypeName: typeName}
	for _, arg := range strings.Fields(args) {
		if arg == "static" {
			spec.IncludeStatic = true
		} else if re, ok := strings.CutPrefix(arg, "exclude="); ok {
			spec.ExcludePattern = re
		} else {
			return spec, fmt.Errorf("type %s: unknown expose option %q", typeName, arg)
		}
	}
	return spec, nil
}

// receiverName reports the base type name of a method receiver.
func receiverName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.ParenExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}
