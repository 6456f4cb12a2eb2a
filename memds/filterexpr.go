// Copyright 2024 LanceDB Developers.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

// parseExpr parses a single SQL expression fragment (a filter, an only_if
// clause, or an update/projection value expression) by wrapping it as a
// trivial SELECT and pulling the clause back out, the same trick the
// retrieval corpus's SQL tokenizer exists to support for filter-expression
// strings (spec.md §2/§4.2 calls these "SQL-like boolean expressions").
func parseExpr(kind, fragment string) (sqlparser.Expr, error) {
	frag := strings.TrimSpace(fragment)
	if frag == "" {
		return nil, fmt.Errorf("memds: empty %s expression", kind)
	}
	switch kind {
	case "where":
		stmt, err := sqlparser.Parse("select * from t where " + frag)
		if err != nil {
			return nil, fmt.Errorf("memds: parsing filter %q: %w", fragment, err)
		}
		sel, ok := stmt.(*sqlparser.Select)
		if !ok || sel.Where == nil {
			return nil, fmt.Errorf("memds: %q is not a boolean expression", fragment)
		}
		return sel.Where.Expr, nil
	case "value":
		stmt, err := sqlparser.Parse("select " + frag + " from t")
		if err != nil {
			return nil, fmt.Errorf("memds: parsing expression %q: %w", fragment, err)
		}
		sel, ok := stmt.(*sqlparser.Select)
		if !ok || len(sel.SelectExprs) != 1 {
			return nil, fmt.Errorf("memds: %q is not a single-valued expression", fragment)
		}
		ae, ok := sel.SelectExprs[0].(*sqlparser.AliasedExpr)
		if !ok {
			return nil, fmt.Errorf("memds: %q is not an expression", fragment)
		}
		return ae.Expr, nil
	default:
		return nil, fmt.Errorf("memds: unknown expression kind %q", kind)
	}
}

// ParseFilter parses a boolean filter expression string.
func ParseFilter(filter string) (sqlparser.Expr, error) { return parseExpr("where", filter) }

// ParseValueExpr parses a scalar value expression string (used by update's
// per-column SQL expressions and by select_with_projection's aliased
// expressions).
func ParseValueExpr(expr string) (sqlparser.Expr, error) { return parseExpr("value", expr) }

// EvalFilter evaluates a pre-parsed filter expression against row.
func EvalFilter(expr sqlparser.Expr, row Row) (bool, error) {
	v, err := evalExpr(expr, row)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("memds: expression did not evaluate to a boolean (got %T)", v)
	}
	return b, nil
}

// EvalValue evaluates a pre-parsed scalar expression against row.
func EvalValue(expr sqlparser.Expr, row Row) (interface{}, error) {
	return evalExpr(expr, row)
}

func evalExpr(expr sqlparser.Expr, row Row) (interface{}, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return evalExpr(e.Expr, row)
	case *sqlparser.AndExpr:
		l, err := evalBool(e.Left, row)
		if err != nil {
			return nil, err
		}
		if !l {
			return false, nil
		}
		return evalBool(e.Right, row)
	case *sqlparser.OrExpr:
		l, err := evalBool(e.Left, row)
		if err != nil {
			return nil, err
		}
		if l {
			return true, nil
		}
		return evalBool(e.Right, row)
	case *sqlparser.NotExpr:
		b, err := evalBool(e.Expr, row)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case *sqlparser.ComparisonExpr:
		l, err := evalExpr(e.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := evalExpr(e.Right, row)
		if err != nil {
			return nil, err
		}
		return compare(e.Operator, l, r)
	case *sqlparser.RangeCond:
		v, err := evalExpr(e.Left, row)
		if err != nil {
			return nil, err
		}
		from, err := evalExpr(e.From, row)
		if err != nil {
			return nil, err
		}
		to, err := evalExpr(e.To, row)
		if err != nil {
			return nil, err
		}
		geFrom, _ := compare(sqlparser.GreaterEqualStr, v, from)
		leTo, _ := compare(sqlparser.LessEqualStr, v, to)
		in := geFrom.(bool) && leTo.(bool)
		if e.Operator == sqlparser.NotBetweenStr {
			return !in, nil
		}
		return in, nil
	case *sqlparser.BinaryExpr:
		l, err := evalExpr(e.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := evalExpr(e.Right, row)
		if err != nil {
			return nil, err
		}
		return arith(e.Operator, l, r)
	case *sqlparser.UnaryExpr:
		v, err := evalExpr(e.Expr, row)
		if err != nil {
			return nil, err
		}
		if e.Operator == sqlparser.UMinusStr {
			return -toFloat64(v), nil
		}
		return v, nil
	case *sqlparser.ColName:
		name := e.Name.String()
		if !e.Qualifier.Name.IsEmpty() {
			name = e.Qualifier.Name.String() + "." + name
		}
		v, ok := row.Get(name)
		if !ok {
			return nil, fmt.Errorf("memds: column %q not found", name)
		}
		return v, nil
	case *sqlparser.SQLVal:
		return sqlVal(e)
	case *sqlparser.NullVal:
		return nil, nil
	case sqlparser.BoolVal:
		return bool(e), nil
	default:
		return nil, fmt.Errorf("memds: unsupported expression %T (%s)", expr, sqlparser.String(expr))
	}
}

func evalBool(expr sqlparser.Expr, row Row) (bool, error) {
	v, err := evalExpr(expr, row)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("memds: expected boolean, got %T", v)
	}
	return b, nil
}

func sqlVal(v *sqlparser.SQLVal) (interface{}, error) {
	switch v.Type {
	case sqlparser.IntVal:
		n, err := strconv.ParseInt(string(v.Val), 10, 64)
		return n, err
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(v.Val), 64)
		return f, err
	case sqlparser.StrVal:
		return string(v.Val), nil
	default:
		return string(v.Val), nil
	}
}

func compare(op string, l, r interface{}) (interface{}, error) {
	if isNumeric(l) && isNumeric(r) {
		lf, rf := toFloat64(numericOf(l)), toFloat64(numericOf(r))
		switch op {
		case sqlparser.EqualStr:
			return lf == rf, nil
		case sqlparser.NotEqualStr:
			return lf != rf, nil
		case sqlparser.LessThanStr:
			return lf < rf, nil
		case sqlparser.LessEqualStr:
			return lf <= rf, nil
		case sqlparser.GreaterThanStr:
			return lf > rf, nil
		case sqlparser.GreaterEqualStr:
			return lf >= rf, nil
		}
	}
	ls, rs := fmt.Sprintf("%v", l), fmt.Sprintf("%v", r)
	switch op {
	case sqlparser.EqualStr:
		return ls == rs, nil
	case sqlparser.NotEqualStr:
		return ls != rs, nil
	case sqlparser.LessThanStr:
		return ls < rs, nil
	case sqlparser.LessEqualStr:
		return ls <= rs, nil
	case sqlparser.GreaterThanStr:
		return ls > rs, nil
	case sqlparser.GreaterEqualStr:
		return ls >= rs, nil
	case sqlparser.LikeStr:
		return likeMatch(rs, ls), nil
	}
	return nil, fmt.Errorf("memds: unsupported comparison operator %q", op)
}

func arith(op string, l, r interface{}) (interface{}, error) {
	lf, rf := toFloat64(numericOf(l)), toFloat64(numericOf(r))
	switch op {
	case sqlparser.PlusStr:
		return lf + rf, nil
	case sqlparser.MinusStr:
		return lf - rf, nil
	case sqlparser.MultStr:
		return lf * rf, nil
	case sqlparser.DivStr:
		return lf / rf, nil
	case sqlparser.ModStr:
		return float64(int64(lf) % int64(rf)), nil
	default:
		return nil, fmt.Errorf("memds: unsupported arithmetic operator %q", op)
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int64, int, float64, float32:
		return true
	default:
		return false
	}
}

func numericOf(v interface{}) interface{} { return v }

// likeMatch implements the subset of SQL LIKE needed for filter predicates:
// '%' as a wildcard, everything else literal.
func likeMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	rest := s[len(parts[0]):]
	for _, p := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, p)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(p):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1])
}
