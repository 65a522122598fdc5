// Package check implements the bidirectional type checker (C3): a
// two-judgment check/infer algorithm over a parsed Program, threading an
// environment of bound names, imported namespaces, and an accumulator
// of errors and warnings.
package check

import "github.com/loom-run/loom/types"

// Span marks a byte range in the original program source.
type Span struct {
	Start int
	End   int
}

// Program is the parser's output: a well-formed AST of declarations.
// The checker does not parse; it consumes exactly this shape.
type Program struct {
	Uses        []UseDecl
	TypeAliases []TypeAliasDecl
	Decls       []Decl
	Outputs     []OutputDecl
}

// UseDecl imports a namespace, optionally under an alias.
type UseDecl struct {
	Namespace string
	Alias     string // empty if unaliased
	Span      Span
}

// TypeAliasDecl binds a name to a type expression (possibly a union via `+`).
type TypeAliasDecl struct {
	Name string
	Type types.SemanticType
	Span Span
}

// OutputDecl names a value to surface as a pipeline output.
type OutputDecl struct {
	Name string
	Span Span
}

// Decl is one of InputDecl or Assignment.
type Decl interface{ declSpan() Span }

// InputDecl declares an externally-supplied input.
type InputDecl struct {
	Name string
	Type types.SemanticType
	Span Span
}

func (d InputDecl) declSpan() Span { return d.Span }

// Assignment binds name to the result of expr.
type Assignment struct {
	Name string
	Expr Expr
	Span Span
}

func (d Assignment) declSpan() Span { return d.Span }

// Expr is one TypedExpression variant. The checker annotates each node
// it visits with a SemanticType (returned from infer/check, not stored
// on the node itself — the parser's Expr tree is immutable input).
type Expr interface{ exprSpan() Span }

// Literal is a scalar or empty-list literal.
type Literal struct {
	Kind  LiteralKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Span  Span
}

func (e Literal) exprSpan() Span { return e.Span }

// LiteralKind discriminates Literal.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralBool
	LiteralEmptyList
)

// VarRef references a bound name.
type VarRef struct {
	Name string
	Span Span
}

func (e VarRef) exprSpan() Span { return e.Span }

// RecordLit constructs a record from field expressions.
type RecordLit struct {
	Fields []RecordLitField
	Span   Span
}

func (e RecordLit) exprSpan() Span { return e.Span }

// RecordLitField is one name:expr pair of a RecordLit.
type RecordLitField struct {
	Name string
	Expr Expr
}

// Merge is `a + b`.
type Merge struct {
	Left, Right Expr
	Span        Span
}

func (e Merge) exprSpan() Span { return e.Span }

// Projection is `e[f1, f2, ...]` or `e{...}`.
type Projection struct {
	Base   Expr
	Fields []string
	Span   Span
}

func (e Projection) exprSpan() Span { return e.Span }

// FieldAccess is `e.f`.
type FieldAccess struct {
	Base  Expr
	Field string
	Span  Span
}

func (e FieldAccess) exprSpan() Span { return e.Span }

// Conditional is `if cond then e1 else e2`.
type Conditional struct {
	Cond, Then, Else Expr
	Span             Span
}

func (e Conditional) exprSpan() Span { return e.Span }

// Guard is `e when cond`.
type Guard struct {
	Value, Cond Expr
	Span        Span
}

func (e Guard) exprSpan() Span { return e.Span }

// Coalesce is `a ?? b`.
type Coalesce struct {
	Left, Right Expr
	Span        Span
}

func (e Coalesce) exprSpan() Span { return e.Span }

// Call invokes a registered function by name, optionally namespace-
// qualified, with an ordered argument list and per-call module options.
type Call struct {
	Namespace string // empty if unqualified
	Name      string
	Args      []Expr
	Options   CallOptions
	Span      Span
}

func (e Call) exprSpan() Span { return e.Span }

// CallOptions carries per-call module execution options (C6), opaque
// to the checker beyond their presence.
type CallOptions struct {
	Timeout        string
	Retry          *RetryOptions
	Cache          bool
	RateLimit      *RateLimitOptions
	Priority       int
	ErrorStrategy  string
}

// RetryOptions mirrors policy.Retry's constructor parameters at the
// surface-syntax level.
type RetryOptions struct {
	MaxAttempts int
	Backoff     string
	BaseDelay   string
	MaxDelay    string
}

// RateLimitOptions mirrors policy.RateLimiter's constructor parameters.
type RateLimitOptions struct {
	Count int
	Per   string
	Mode  string
}

// Lambda is an anonymous function; Params may be empty in inference
// mode (requiring LambdaNeedsAnnotation unless checked against an
// expected Function type).
type Lambda struct {
	ParamNames  []string
	ParamTypes  []types.SemanticType // nil entries mean "uninferred"
	Body        Expr
	Span        Span
}

func (e Lambda) exprSpan() Span { return e.Span }

// BinOpKind enumerates arithmetic, comparison, and boolean operators.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte
	OpAnd
	OpOr
)

// BinOp is a binary arithmetic/comparison/boolean expression.
type BinOp struct {
	Op          BinOpKind
	Left, Right Expr
	Span        Span
}

func (e BinOp) exprSpan() Span { return e.Span }

// Not is the unary boolean negation.
type Not struct {
	Operand Expr
	Span    Span
}

func (e Not) exprSpan() Span { return e.Span }
