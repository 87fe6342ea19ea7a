package core

import (
	"fmt"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// QueryType identifies the statement kind
type QueryType int

const (
	SELECT QueryType = iota
	UNSUPPORTED
)

// WhereCondition is one node of the WHERE tree. Leaf nodes carry a
// column comparison; complex nodes combine two children with AND/OR, or
// negate one child with NOT.
type WhereCondition struct {
	Column   string
	Operator string      // =, !=, <, <=, >, >=, BETWEEN
	Value    interface{} // Single comparison value
	// For BETWEEN
	ValueFrom interface{}
	ValueTo   interface{}

	// For complex logical operations
	IsComplex bool
	LogicalOp string // "AND", "OR", "NOT"
	Left      *WhereCondition
	Right     *WhereCondition
}

// SampleClause carries a requested sample size: either a fraction in
// (0, 1] or an absolute row count.
type SampleClause struct {
	IsFraction bool
	Fraction   float64
	Rows       uint64
}

// ParsedQuery is the planner-facing form of a parsed SELECT statement.
//
// Final and Prewhere have no PostgreSQL surface syntax; front-ends that
// support those query modes set the fields after parsing.
type ParsedQuery struct {
	Type      QueryType
	RawSQL    string
	TableName string
	Columns   []string
	Where     *WhereCondition
	Sample    *SampleClause
	Final     bool
	Prewhere  *WhereCondition
}

// SQLParser parses SQL text into ParsedQuery values
type SQLParser struct{}

// NewSQLParser creates a new SQL parser
func NewSQLParser() *SQLParser {
	return &SQLParser{}
}

// Parse parses a single SELECT statement.
func (p *SQLParser) Parse(sql string) (*ParsedQuery, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}

	if len(result.Stmts) == 0 {
		return nil, fmt.Errorf("no statements found in SQL")
	}

	stmt := result.Stmts[0].Stmt
	query := &ParsedQuery{RawSQL: sql}

	selectStmt := stmt.GetSelectStmt()
	if selectStmt == nil {
		query.Type = UNSUPPORTED
		return query, fmt.Errorf("unsupported statement type")
	}
	query.Type = SELECT

	if err := p.parseFromClause(selectStmt.FromClause, query); err != nil {
		return nil, err
	}
	p.parseTargetList(selectStmt.TargetList, query)
	if selectStmt.WhereClause != nil {
		query.Where = p.parseWhereCondition(selectStmt.WhereClause)
	}

	GetTracer().Debug(TraceComponentParser, "Parsed SELECT", TraceContext(
		"table", query.TableName,
		"columns", len(query.Columns),
		"sampled", query.Sample != nil))

	return query, nil
}

func (p *SQLParser) parseFromClause(fromClause []*pg_query.Node, query *ParsedQuery) error {
	if len(fromClause) == 0 {
		return fmt.Errorf("empty FROM clause")
	}

	fromNode := fromClause[0]

	if rangeVar := fromNode.GetRangeVar(); rangeVar != nil {
		query.TableName = rangeVar.Relname
		return nil
	}

	// TABLESAMPLE wraps the relation in a RangeTableSample node.
	if sample := fromNode.GetRangeTableSample(); sample != nil {
		if rangeVar := sample.Relation.GetRangeVar(); rangeVar != nil {
			query.TableName = rangeVar.Relname
		}
		clause, err := p.parseTableSample(sample)
		if err != nil {
			return err
		}
		query.Sample = clause
		return nil
	}

	return fmt.Errorf("unsupported FROM clause")
}

// parseTableSample maps TABLESAMPLE methods onto the sample clause:
// BERNOULLI/SYSTEM take a percentage; ROWS takes an absolute count.
func (p *SQLParser) parseTableSample(sample *pg_query.RangeTableSample) (*SampleClause, error) {
	method := ""
	if len(sample.Method) > 0 {
		if s := sample.Method[len(sample.Method)-1].GetString_(); s != nil {
			method = strings.ToLower(s.Sval)
		}
	}
	if len(sample.Args) == 0 {
		return nil, fmt.Errorf("TABLESAMPLE requires an argument")
	}

	arg, ok := constantFromNode(sample.Args[0])
	if !ok {
		return nil, fmt.Errorf("unsupported TABLESAMPLE argument")
	}

	switch method {
	case "bernoulli", "system":
		pct, ok := AsFloat64(arg)
		if !ok {
			if s, isStr := arg.(string); isStr {
				var err error
				pct, err = strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid TABLESAMPLE percentage: %v", arg)
				}
			} else {
				return nil, fmt.Errorf("invalid TABLESAMPLE percentage: %v", arg)
			}
		}
		return &SampleClause{IsFraction: true, Fraction: pct / 100}, nil
	case "rows", "system_rows":
		rows, ok := AsUInt64(arg)
		if !ok {
			return nil, fmt.Errorf("invalid TABLESAMPLE row count: %v", arg)
		}
		return &SampleClause{Rows: rows}, nil
	default:
		return nil, fmt.Errorf("unsupported TABLESAMPLE method: %s", method)
	}
}

func (p *SQLParser) parseTargetList(targetList []*pg_query.Node, query *ParsedQuery) {
	for _, target := range targetList {
		resTarget := target.GetResTarget()
		if resTarget == nil || resTarget.Val == nil {
			continue
		}
		if columnRef := resTarget.Val.GetColumnRef(); columnRef != nil {
			if len(columnRef.Fields) > 0 {
				if columnRef.Fields[len(columnRef.Fields)-1].GetAStar() != nil {
					query.Columns = append(query.Columns, "*")
					continue
				}
				if str := columnRef.Fields[len(columnRef.Fields)-1].GetString_(); str != nil {
					query.Columns = append(query.Columns, str.Sval)
				}
			}
		}
	}
}

// parseWhereCondition builds the condition tree. Subtrees the planner
// cannot use (functions, subqueries, IS NULL and the like) come back as
// nil leaves; the key condition treats those as unrestricted.
func (p *SQLParser) parseWhereCondition(node *pg_query.Node) *WhereCondition {
	if boolExpr := node.GetBoolExpr(); boolExpr != nil {
		switch boolExpr.Boolop {
		case pg_query.BoolExprType_AND_EXPR, pg_query.BoolExprType_OR_EXPR:
			op := "AND"
			if boolExpr.Boolop == pg_query.BoolExprType_OR_EXPR {
				op = "OR"
			}
			if len(boolExpr.Args) == 0 {
				return nil
			}
			condition := p.parseWhereCondition(boolExpr.Args[0])
			for i := 1; i < len(boolExpr.Args); i++ {
				condition = &WhereCondition{
					IsComplex: true,
					LogicalOp: op,
					Left:      condition,
					Right:     p.parseWhereCondition(boolExpr.Args[i]),
				}
			}
			return condition
		case pg_query.BoolExprType_NOT_EXPR:
			if len(boolExpr.Args) != 1 {
				return nil
			}
			return &WhereCondition{
				IsComplex: true,
				LogicalOp: "NOT",
				Left:      p.parseWhereCondition(boolExpr.Args[0]),
			}
		}
		return nil
	}

	aExpr := node.GetAExpr()
	if aExpr == nil {
		return nil
	}

	condition := &WhereCondition{}

	if lexpr := aExpr.Lexpr; lexpr != nil {
		if columnRef := lexpr.GetColumnRef(); columnRef != nil {
			if len(columnRef.Fields) > 0 {
				if str := columnRef.Fields[len(columnRef.Fields)-1].GetString_(); str != nil {
					condition.Column = str.Sval
				}
			}
		}
	}
	if condition.Column == "" {
		return nil
	}

	if aExpr.Kind == pg_query.A_Expr_Kind_AEXPR_BETWEEN {
		condition.Operator = "BETWEEN"
		if rexpr := aExpr.Rexpr; rexpr != nil {
			if aList := rexpr.GetList(); aList != nil && len(aList.Items) >= 2 {
				if v, ok := constantFromNode(aList.Items[0]); ok {
					condition.ValueFrom = v
				}
				if v, ok := constantFromNode(aList.Items[1]); ok {
					condition.ValueTo = v
				}
			}
		}
		if condition.ValueFrom == nil || condition.ValueTo == nil {
			return nil
		}
		return condition
	}

	if aExpr.Kind != pg_query.A_Expr_Kind_AEXPR_OP || len(aExpr.Name) == 0 {
		return nil
	}
	opStr := aExpr.Name[0].GetString_()
	if opStr == nil {
		return nil
	}
	switch opStr.Sval {
	case "=", "<", "<=", ">", ">=":
		condition.Operator = opStr.Sval
	case "<>", "!=":
		condition.Operator = "!="
	default:
		return nil
	}

	if rexpr := aExpr.Rexpr; rexpr != nil {
		if v, ok := constantFromNode(rexpr); ok {
			condition.Value = v
		}
	}
	if condition.Value == nil {
		return nil
	}
	return condition
}

// constantFromNode extracts a literal from an A_Const node.
func constantFromNode(node *pg_query.Node) (interface{}, bool) {
	aConst := node.GetAConst()
	if aConst == nil {
		return nil, false
	}
	if ival := aConst.GetIval(); ival != nil {
		return int64(ival.Ival), true
	}
	if sval := aConst.GetSval(); sval != nil {
		return sval.Sval, true
	}
	if fval := aConst.GetFval(); fval != nil {
		f, err := strconv.ParseFloat(fval.Fval, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}
	if bval := aConst.GetBoolval(); bval != nil {
		return bval.Boolval, true
	}
	return nil, false
}

// String renders the condition tree for diagnostics.
func (wc *WhereCondition) String() string {
	if wc == nil {
		return "unknown"
	}
	if wc.IsComplex {
		if wc.LogicalOp == "NOT" {
			return fmt.Sprintf("not(%s)", wc.Left.String())
		}
		return fmt.Sprintf("(%s %s %s)", wc.Left.String(), strings.ToLower(wc.LogicalOp), wc.Right.String())
	}
	if wc.Operator == "BETWEEN" {
		return fmt.Sprintf("%s between %v and %v", wc.Column, wc.ValueFrom, wc.ValueTo)
	}
	return fmt.Sprintf("%s %s %v", wc.Column, wc.Operator, wc.Value)
}
