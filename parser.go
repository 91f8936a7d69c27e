package v7

// Parser is a recursive-descent ES5 parser driven by a 1-token
// lookahead over Lexer. Go's goroutine stacks grow on demand, unlike
// the fixed C stack the spec's coroutine/frame-stack design (§4.3)
// exists to protect, so this parser recurses directly instead of
// threading an explicit frame stack through a trampoline; what the
// spec's design is actually protecting against — unbounded recursion
// driven by attacker-controlled source nesting depth — is preserved
// by the depth counter below, which raises the same bounded-depth
// guarantee as a StackOverflowError instead of a Go stack overflow (see
// DESIGN.md).
type Parser struct {
	lx     *Lexer
	tok    Token
	ast    *AST
	depth  int
	maxDepth int
	strict bool
}

func NewParser(src []byte, cfg *EngineConfig) (*Parser, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Parser{
		lx:       NewLexer(src),
		ast:      NewAST(cfg.WideASTSkips),
		maxDepth: cfg.MaxParserFrames,
		strict:   cfg.ForceStrict,
	}
	if err := p.advance(true); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance(regexAllowed bool) error {
	t, err := p.lx.Next(regexAllowed)
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		return StackOverflowError{Message: "parser recursion depth exceeded MaxParserFrames"}
	}
	return nil
}

func (p *Parser) leave() { p.depth-- }

func (p *Parser) syntaxErrorf(msg string) error {
	loc := p.tok.Loc
	return SyntaxError{Message: msg, Loc: loc, Caret: p.lx.lines.CaretLine(loc)}
}

func (p *Parser) isPunct(s string) bool { return p.tok.Kind == TokPunct && p.tok.Value == s }
func (p *Parser) isKeyword(s string) bool { return p.tok.Kind == TokKeyword && p.tok.Value == s }

func (p *Parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.syntaxErrorf("expected '" + s + "'")
	}
	return p.advance(regexAllowedAfterPunct(s))
}

// regexAllowedAfterPunct decides whether the token following punct s
// may legally start a regexp literal (true after anything that cannot
// end an expression -- everything except `)`, `]`).
func regexAllowedAfterPunct(s string) bool {
	return s != ")" && s != "]"
}

// consumeSemicolon implements Automatic Semicolon Insertion (spec
// §4.2): an explicit `;`, an implicit insertion before `}` or EOF, or
// before a token that began on a new line, are all accepted silently.
func (p *Parser) consumeSemicolon() error {
	if p.isPunct(";") {
		return p.advance(true)
	}
	if p.isPunct("}") || p.tok.Kind == TokEOF || p.tok.NewlineBefore {
		return nil
	}
	return p.syntaxErrorf("expected ';'")
}

// ParseProgram parses an entire source file into a Program AST node
// and returns the finished buffer.
func ParseProgram(src []byte, cfg *EngineConfig) (*AST, error) {
	p, err := NewParser(src, cfg)
	if err != nil {
		return nil, err
	}
	skip := p.ast.OpenNode(ASTProgram)
	for p.tok.Kind != TokEOF {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}
	if err := p.ast.CloseNode(skip); err != nil {
		return nil, err
	}
	return p.ast, nil
}

// ---- Statements ----

func (p *Parser) parseStatement() error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	switch {
	case p.isPunct("{"):
		return p.parseBlock()
	case p.isPunct(";"):
		skip := p.ast.OpenNode(ASTEmptyStmt)
		if err := p.advance(true); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isKeyword("var"):
		return p.parseVarStatement()
	case p.isKeyword("function"):
		return p.parseFunctionDecl()
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("for"):
		return p.parseFor()
	case p.isKeyword("while"):
		return p.parseWhile()
	case p.isKeyword("do"):
		return p.parseDoWhile()
	case p.isKeyword("return"):
		return p.parseReturn()
	case p.isKeyword("break"):
		return p.parseBreakContinue(ASTBreakStmt, "break")
	case p.isKeyword("continue"):
		return p.parseBreakContinue(ASTContinueStmt, "continue")
	case p.isKeyword("throw"):
		return p.parseThrow()
	case p.isKeyword("try"):
		return p.parseTry()
	case p.isKeyword("switch"):
		return p.parseSwitch()
	default:
		if p.tok.Kind == TokIdent {
			return p.parseIdentOrLabeled()
		}
		return p.parseExprStatement()
	}
}

func (p *Parser) parseBlock() error {
	skip := p.ast.OpenNode(ASTBlockStmt)
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	for !p.isPunct("}") {
		if p.tok.Kind == TokEOF {
			return p.syntaxErrorf("unexpected end of input, expected '}'")
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseVarStatement() error {
	skip := p.ast.OpenNode(ASTVarDecl)
	if err := p.advance(true); err != nil { // consume 'var'
		return err
	}
	for {
		if err := p.parseVarDeclarator(); err != nil {
			return err
		}
		if !p.isPunct(",") {
			break
		}
		if err := p.advance(true); err != nil {
			return err
		}
	}
	if err := p.consumeSemicolon(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseVarDeclarator() error {
	if p.tok.Kind != TokIdent {
		return p.syntaxErrorf("expected identifier in variable declaration")
	}
	name := p.tok.Value
	if err := p.advance(false); err != nil {
		return err
	}
	declSkip := p.ast.OpenNode(ASTVarDeclarator)
	hasInit := p.isPunct("=")
	if hasInit {
		p.ast.AddByte(1)
	} else {
		p.ast.AddByte(0)
	}
	p.ast.AddString(name)
	if hasInit {
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseAssignExpr(); err != nil {
			return err
		}
	}
	return p.ast.CloseNode(declSkip)
}

func (p *Parser) parseFunctionDecl() error {
	return p.parseFunction(ASTFunctionDecl, true)
}

func (p *Parser) parseFunction(tag ASTTag, nameRequired bool) error {
	skip := p.ast.OpenNode(tag)
	if err := p.advance(false); err != nil { // consume 'function'
		return err
	}
	name := ""
	if p.tok.Kind == TokIdent {
		name = p.tok.Value
		if err := p.advance(false); err != nil {
			return err
		}
	} else if nameRequired {
		return p.syntaxErrorf("function statement requires a name")
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	var params []string
	for !p.isPunct(")") {
		if p.tok.Kind != TokIdent {
			return p.syntaxErrorf("expected parameter name")
		}
		params = append(params, p.tok.Value)
		if err := p.advance(false); err != nil {
			return err
		}
		if p.isPunct(",") {
			if err := p.advance(false); err != nil {
				return err
			}
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	p.ast.AddString(name)
	if len(params) > 0xFFFF {
		return p.syntaxErrorf("too many parameters")
	}
	p.ast.AddUint16(uint16(len(params)))
	for _, prm := range params {
		p.ast.AddString(prm)
	}
	if err := p.parseBlock(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseIf() error {
	skip := p.ast.OpenNode(ASTIfStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	hasAlt := false
	// placeholder byte patched below once we know if an alternate exists
	flagPos := len(p.ast.buf)
	p.ast.AddByte(0)
	if err := p.parseStatement(); err != nil {
		return err
	}
	if p.isKeyword("else") {
		hasAlt = true
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
	}
	if hasAlt {
		p.ast.buf[flagPos] = 1
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseWhile() error {
	skip := p.ast.OpenNode(ASTWhileStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseDoWhile() error {
	skip := p.ast.OpenNode(ASTDoWhileStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	if !p.isKeyword("while") {
		return p.syntaxErrorf("expected 'while' after do-block")
	}
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	_ = p.consumeSemicolon()
	return p.ast.CloseNode(skip)
}

// parseFor disambiguates ForStmt vs ForInStmt by looking for a bare
// `in` keyword after the first clause, the same lookahead every ES5
// parser needs here.
func (p *Parser) parseFor() error {
	startBuf := len(p.ast.buf)
	if err := p.advance(true); err != nil { // consume 'for'
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}

	isVarDecl := p.isKeyword("var")

	if isVarDecl {
		if err := p.advance(false); err != nil {
			return err
		}
		if p.tok.Kind != TokIdent {
			return p.syntaxErrorf("expected identifier after 'var'")
		}
		initName := p.tok.Value
		if err := p.advance(true); err != nil {
			return err
		}
		if p.isKeyword("in") {
			return p.finishForIn(startBuf, true, initName)
		}
		return p.finishForClassic(startBuf, true, initName)
	}

	if !p.isPunct(";") {
		// Could be `expr in expr` (for-in over an lvalue) or a normal
		// expression for-init; parse one assignment expression first,
		// the left-hand-side probe both forms share.
		if err := p.parseAssignExpr(); err != nil {
			return err
		}
		if p.isKeyword("in") {
			return p.finishForIn(startBuf, false, "")
		}
		for p.isPunct(",") {
			if err := p.advance(true); err != nil {
				return err
			}
			if err := p.parseAssignExpr(); err != nil {
				return err
			}
		}
		return p.finishForClassicExpr(startBuf, true)
	}
	return p.finishForClassicExpr(startBuf, false)
}

// finishForIn and finishForClassic(Expr) are called after some or all
// of the for-header's init clause has already been parsed directly
// into the buffer (to probe for a following `in`), so each opens its
// node via rewrap rather than OpenNode: rewrap lifts whatever was
// already written since startBuf and re-appends it as this node's
// first child(ren), which is what keeps the buffer strictly
// append-only while still supporting this lookahead.
func (p *Parser) finishForIn(startBuf int, isVarDecl bool, varName string) error {
	skip, _ := p.rewrap(startBuf, ASTForInStmt, func() {
		if isVarDecl {
			p.ast.AddByte(1)
		} else {
			p.ast.AddByte(0)
		}
	})
	if isVarDecl {
		// The declarator wasn't written yet (unlike the bare-lvalue
		// case, where parseAssignExpr already wrote the expression
		// before rewrap moved it into place); write it now as the
		// first child, appended immediately after the flag byte.
		declSkip := p.ast.OpenNode(ASTVarDeclarator)
		p.ast.AddByte(0)
		p.ast.AddString(varName)
		if err := p.ast.CloseNode(declSkip); err != nil {
			return err
		}
	}
	if err := p.advance(true); err != nil { // consume 'in'
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) finishForClassic(startBuf int, isVarDecl bool, firstName string) error {
	skip := p.ast.OpenNode(ASTForStmt)
	flagPos := len(p.ast.buf)
	p.ast.AddByte(0b001) // hasInit: the var-decl node below is always present
	initSkip := p.ast.OpenNode(ASTVarDecl)
	declSkip := p.ast.OpenNode(ASTVarDeclarator)
	hasInit := p.isPunct("=")
	if hasInit {
		p.ast.AddByte(1)
	} else {
		p.ast.AddByte(0)
	}
	p.ast.AddString(firstName)
	if hasInit {
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseAssignExpr(); err != nil {
			return err
		}
	}
	if err := p.ast.CloseNode(declSkip); err != nil {
		return err
	}
	for p.isPunct(",") {
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseVarDeclarator(); err != nil {
			return err
		}
	}
	if err := p.ast.CloseNode(initSkip); err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	hasTest, err := p.parseOptionalExprOrEmpty(";")
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	hasUpdate, err := p.parseOptionalExprOrEmpty(")")
	if err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	flags := byte(0b001)
	if hasTest {
		flags |= 0b010
	}
	if hasUpdate {
		flags |= 0b100
	}
	p.ast.buf[flagPos] = flags
	return p.ast.CloseNode(skip)
}

// finishForClassicExpr closes over whether an init clause was already
// parsed into the buffer (hasInit) before probing for 'in'; the
// flags byte is patched once test/update presence is known, the same
// after-the-fact pattern parseIf uses for its hasAlt byte, since
// parseOptionalExprOrEmpty may or may not append a child.
func (p *Parser) finishForClassicExpr(startBuf int, hasInit bool) error {
	var flagPos int
	skip, _ := p.rewrap(startBuf, ASTForStmt, func() {
		flagPos = len(p.ast.buf)
		p.ast.AddByte(0)
	})
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	hasTest, err := p.parseOptionalExprOrEmpty(";")
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	hasUpdate, err := p.parseOptionalExprOrEmpty(")")
	if err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.parseStatement(); err != nil {
		return err
	}
	flags := byte(0)
	if hasInit {
		flags |= 0b001
	}
	if hasTest {
		flags |= 0b010
	}
	if hasUpdate {
		flags |= 0b100
	}
	p.ast.buf[flagPos] = flags
	return p.ast.CloseNode(skip)
}

// parseOptionalExprOrEmpty parses an Expression unless the next token
// is stopPunct, reporting whether a child was actually appended (spec
// §4.2's for-header clauses are all independently optional).
func (p *Parser) parseOptionalExprOrEmpty(stopPunct string) (bool, error) {
	if p.isPunct(stopPunct) {
		return false, nil
	}
	if err := p.parseExpr(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Parser) parseReturn() error {
	skip := p.ast.OpenNode(ASTReturnStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	hasArg := !(p.isPunct(";") || p.isPunct("}") || p.tok.Kind == TokEOF || p.tok.NewlineBefore)
	if hasArg {
		p.ast.AddByte(1)
		if err := p.parseExpr(); err != nil {
			return err
		}
	} else {
		p.ast.AddByte(0)
	}
	if err := p.consumeSemicolon(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseBreakContinue(tag ASTTag, kw string) error {
	skip := p.ast.OpenNode(tag)
	if err := p.advance(false); err != nil {
		return err
	}
	hasLabel := p.tok.Kind == TokIdent && !p.tok.NewlineBefore
	if hasLabel {
		p.ast.AddByte(1)
		p.ast.AddString(p.tok.Value)
		if err := p.advance(true); err != nil {
			return err
		}
	} else {
		p.ast.AddByte(0)
	}
	if err := p.consumeSemicolon(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseThrow() error {
	skip := p.ast.OpenNode(ASTThrowStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	if p.tok.NewlineBefore {
		return p.syntaxErrorf("illegal newline after 'throw'")
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.consumeSemicolon(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseTry() error {
	skip := p.ast.OpenNode(ASTTryStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	flagPos := len(p.ast.buf)
	p.ast.AddByte(0)
	if err := p.parseBlock(); err != nil {
		return err
	}
	flags := byte(0)
	if p.isKeyword("catch") {
		flags |= 1
		catchSkip := p.ast.OpenNode(ASTCatchClause)
		if err := p.advance(false); err != nil {
			return err
		}
		if err := p.expectPunct("("); err != nil {
			return err
		}
		if p.tok.Kind != TokIdent {
			return p.syntaxErrorf("expected catch parameter")
		}
		param := p.tok.Value
		if err := p.advance(false); err != nil {
			return err
		}
		if err := p.expectPunct(")"); err != nil {
			return err
		}
		p.ast.AddString(param)
		if err := p.parseBlock(); err != nil {
			return err
		}
		if err := p.ast.CloseNode(catchSkip); err != nil {
			return err
		}
	}
	if p.isKeyword("finally") {
		flags |= 2
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseBlock(); err != nil {
			return err
		}
	}
	if flags&3 == 0 {
		return p.syntaxErrorf("'try' must have a catch or finally block")
	}
	p.ast.buf[flagPos] = flags
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseSwitch() error {
	skip := p.ast.OpenNode(ASTSwitchStmt)
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(")"); err != nil {
		return err
	}
	if err := p.expectPunct("{"); err != nil {
		return err
	}
	seenDefault := false
	for !p.isPunct("}") {
		if p.tok.Kind == TokEOF {
			return p.syntaxErrorf("unexpected end of input in switch statement")
		}
		caseSkip := p.ast.OpenNode(ASTCaseClause)
		if p.isKeyword("case") {
			p.ast.AddByte(1)
			if err := p.advance(true); err != nil {
				return err
			}
			if err := p.parseExpr(); err != nil {
				return err
			}
		} else if p.isKeyword("default") {
			if seenDefault {
				return p.syntaxErrorf("multiple 'default' clauses in switch")
			}
			seenDefault = true
			p.ast.AddByte(0)
			if err := p.advance(false); err != nil {
				return err
			}
		} else {
			return p.syntaxErrorf("expected 'case' or 'default'")
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		for !p.isPunct("}") && !p.isKeyword("case") && !p.isKeyword("default") {
			if err := p.parseStatement(); err != nil {
				return err
			}
		}
		if err := p.ast.CloseNode(caseSkip); err != nil {
			return err
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseIdentOrLabeled() error {
	name := p.tok.Value
	save := *p.lx
	saveTok := p.tok
	if err := p.advance(false); err != nil {
		return err
	}
	if p.isPunct(":") {
		skip := p.ast.OpenNode(ASTLabeledStmt)
		p.ast.AddString(name)
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseStatement(); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	}
	*p.lx = save
	p.tok = saveTok
	return p.parseExprStatement()
}

func (p *Parser) parseExprStatement() error {
	skip := p.ast.OpenNode(ASTExprStmt)
	if err := p.parseExpr(); err != nil {
		return err
	}
	if err := p.consumeSemicolon(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

// ---- Expressions ----

// parseExpr parses a full Expression production, i.e. an AssignExpr
// optionally followed by `, AssignExpr` repeated (SequenceExpr). Like
// the operator-precedence layers above, the first operand is written
// before we know a comma follows, so a SequenceExpr is formed with
// the same rewrap technique: reopen a node around everything written
// since this call started and keep appending further operands as
// later children.
func (p *Parser) parseExpr() error {
	startBuf := len(p.ast.buf)
	if err := p.parseAssignExpr(); err != nil {
		return err
	}
	if !p.isPunct(",") {
		return nil
	}
	skip, _ := p.rewrap(startBuf, ASTSequenceExpr, nil)
	for p.isPunct(",") {
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseAssignExpr(); err != nil {
			return err
		}
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseAssignExpr() error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()
	return p.parseConditional()
}

var assignOps = map[string]byte{
	"=": 0, "+=": 1, "-=": 2, "*=": 3, "/=": 4, "%=": 5,
	"<<=": 6, ">>=": 7, ">>>=": 8, "&=": 9, "|=": 10, "^=": 11,
}

func (p *Parser) parseConditional() error {
	startBuf := len(p.ast.buf)
	if err := p.parseLogicalOr(); err != nil {
		return err
	}
	if p.isPunct("?") {
		return p.wrapConditional(startBuf)
	}
	if op, ok := assignOps[p.tok.Value]; ok && p.tok.Kind == TokPunct {
		return p.wrapAssign(startBuf, op)
	}
	return nil
}

// wrapConditional/wrapAssign/wrapBinary all face the same append-only
// problem: the left operand has already been written by the time we
// learn an operator follows. Each copies the already-written bytes
// out, reopens a new node, and re-appends them as the first child,
// which is the practical way to keep a strictly-append buffer while
// still doing single-pass operator-precedence parsing without
// unbounded lookahead.
func (p *Parser) rewrap(startBuf int, tag ASTTag, writePayload func()) (skipOffset int, err error) {
	left := append([]byte(nil), p.ast.buf[startBuf:]...)
	p.ast.buf = p.ast.buf[:startBuf]
	skip := p.ast.OpenNode(tag)
	if writePayload != nil {
		writePayload()
	}
	p.ast.buf = append(p.ast.buf, left...)
	return skip, nil
}

func (p *Parser) wrapConditional(startBuf int) error {
	skip, _ := p.rewrap(startBuf, ASTConditionalExpr, nil)
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.parseAssignExpr(); err != nil {
		return err
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	if err := p.parseAssignExpr(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) wrapAssign(startBuf int, op byte) error {
	skip, _ := p.rewrap(startBuf, ASTAssignExpr, func() { p.ast.AddByte(op) })
	if err := p.advance(true); err != nil {
		return err
	}
	if err := p.parseAssignExpr(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

// precedence climbing for binary/logical operators
var binOpPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6, "===": 6, "!==": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7, "instanceof": 7, "in": 7,
	"<<": 8, ">>": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// binOpCode's op byte is written for both ASTBinaryExpr and
// ASTLogicalExpr nodes (the tag alone tells a reader which family it
// is), so "&&"/"||" need their own entries here too even though they
// never reach a BinaryExpr node -- leaving them out left every
// LogicalExpr's op byte at the zero value, indistinguishable from "+".
var binOpCode = map[string]byte{
	"+": 0, "-": 1, "*": 2, "/": 3, "%": 4,
	"<<": 5, ">>": 6, ">>>": 7, "&": 8, "|": 9, "^": 10,
	"==": 11, "!=": 12, "===": 13, "!==": 14,
	"<": 15, "<=": 16, ">": 17, ">=": 18,
	"instanceof": 19, "in": 20,
	"&&": 21, "||": 22,
}

func (p *Parser) parseLogicalOr() error { return p.parseBinary(1, true) }

// parseBinary parses everything between (but not including) the
// assignment/conditional layer and unary expressions, handling both
// BinaryExpr and LogicalExpr uniformly via precedence climbing.
func (p *Parser) parseBinary(minPrec int, allowIn bool) error {
	startBuf := len(p.ast.buf)
	if err := p.parseUnary(); err != nil {
		return err
	}
	for {
		opTok := p.currentBinOpToken()
		if opTok == "" {
			return nil
		}
		if opTok == "in" && !allowIn {
			return nil
		}
		prec, ok := binOpPrec[opTok]
		if !ok || prec < minPrec {
			return nil
		}
		tag := ASTBinaryExpr
		if opTok == "&&" || opTok == "||" {
			tag = ASTLogicalExpr
		}
		skip, _ := p.rewrap(startBuf, tag, func() { p.ast.AddByte(binOpCode[opTok]) })
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseBinary(prec+1, allowIn); err != nil {
			return err
		}
		if err := p.ast.CloseNode(skip); err != nil {
			return err
		}
		startBuf = skip - 1
	}
}

func (p *Parser) currentBinOpToken() string {
	if p.tok.Kind == TokPunct {
		if _, ok := binOpPrec[p.tok.Value]; ok {
			return p.tok.Value
		}
		return ""
	}
	if p.tok.Kind == TokKeyword && (p.tok.Value == "instanceof" || p.tok.Value == "in") {
		return p.tok.Value
	}
	return ""
}

var unaryOpCode = map[string]byte{
	"+": 0, "-": 1, "!": 2, "~": 3, "typeof": 4, "void": 5, "delete": 6,
}

func (p *Parser) parseUnary() error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if p.isPunct("++") || p.isPunct("--") {
		op := p.tok.Value
		if err := p.advance(false); err != nil {
			return err
		}
		skip := p.ast.OpenNode(ASTUpdateExpr)
		opByte := byte(0)
		if op == "--" {
			opByte = 1
		}
		p.ast.AddByte(opByte)
		p.ast.AddByte(1) // prefix
		if err := p.parseUnary(); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	}

	if code, ok := unaryOpCode[p.tok.Value]; ok &&
		(p.tok.Kind == TokPunct && (p.tok.Value == "+" || p.tok.Value == "-" || p.tok.Value == "!" || p.tok.Value == "~") ||
			p.tok.Kind == TokKeyword && (p.tok.Value == "typeof" || p.tok.Value == "void" || p.tok.Value == "delete")) {
		if err := p.advance(true); err != nil {
			return err
		}
		skip := p.ast.OpenNode(ASTUnaryExpr)
		p.ast.AddByte(code)
		if err := p.parseUnary(); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	}

	return p.parsePostfix()
}

func (p *Parser) parsePostfix() error {
	startBuf := len(p.ast.buf)
	if err := p.parseLeftHandSide(); err != nil {
		return err
	}
	if !p.tok.NewlineBefore && (p.isPunct("++") || p.isPunct("--")) {
		op := p.tok.Value
		opByte := byte(0)
		if op == "--" {
			opByte = 1
		}
		skip, _ := p.rewrap(startBuf, ASTUpdateExpr, func() {
			p.ast.AddByte(opByte)
			p.ast.AddByte(0) // not prefix
		})
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	}
	return nil
}

func (p *Parser) parseLeftHandSide() error {
	startBuf := len(p.ast.buf)
	if p.isKeyword("new") {
		if err := p.parseNewExpr(); err != nil {
			return err
		}
	} else {
		if err := p.parsePrimary(); err != nil {
			return err
		}
	}
	for {
		switch {
		case p.isPunct("."):
			if err := p.advance(false); err != nil {
				return err
			}
			if p.tok.Kind != TokIdent && p.tok.Kind != TokKeyword {
				return p.syntaxErrorf("expected property name after '.'")
			}
			name := p.tok.Value
			skip, _ := p.rewrap(startBuf, ASTMemberExpr, func() { p.ast.AddString(name) })
			if err := p.advance(false); err != nil {
				return err
			}
			if err := p.ast.CloseNode(skip); err != nil {
				return err
			}
			startBuf = skip - 1
		case p.isPunct("["):
			if err := p.advance(true); err != nil {
				return err
			}
			skip, _ := p.rewrap(startBuf, ASTComputedMemberExpr, nil)
			if err := p.parseExpr(); err != nil {
				return err
			}
			if err := p.expectPunct("]"); err != nil {
				return err
			}
			if err := p.ast.CloseNode(skip); err != nil {
				return err
			}
			startBuf = skip - 1
		case p.isPunct("("):
			args, err := p.parseArguments()
			if err != nil {
				return err
			}
			skip, _ := p.rewrap(startBuf, ASTCallExpr, func() { p.ast.AddUint16(uint16(args)) })
			// arguments were already appended by parseArguments before
			// rewrap moved the callee bytes; rewrap preserves relative
			// order of what was already in the buffer, and
			// parseArguments only appended after startBuf, so the
			// callee+args ordering is fixed up by writing callee first.
			if err := p.ast.CloseNode(skip); err != nil {
				return err
			}
			startBuf = skip - 1
		default:
			return nil
		}
	}
}

// parseArguments parses a `(args...)` list in place (appended directly
// after whatever precedes it) and returns the argument count; callers
// combine this with rewrap to place the already-parsed callee before
// the arguments, since rewrap moves everything from startBuf forward
// as a single block that already contains both callee and arguments
// bytes in the order they were written -- callee first (it was parsed
// before parseArguments was called), which is exactly the child order
// CallExpr needs.
func (p *Parser) parseArguments() (int, error) {
	if err := p.advance(true); err != nil { // consume '('
		return 0, err
	}
	count := 0
	for !p.isPunct(")") {
		if err := p.parseAssignExpr(); err != nil {
			return 0, err
		}
		count++
		if p.isPunct(",") {
			if err := p.advance(true); err != nil {
				return 0, err
			}
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *Parser) parseNewExpr() error {
	if err := p.advance(true); err != nil { // consume 'new'
		return err
	}
	startBuf := len(p.ast.buf)
	if p.isKeyword("new") {
		if err := p.parseNewExpr(); err != nil {
			return err
		}
	} else {
		if err := p.parsePrimary(); err != nil {
			return err
		}
		for p.isPunct(".") || p.isPunct("[") {
			if p.isPunct(".") {
				if err := p.advance(false); err != nil {
					return err
				}
				name := p.tok.Value
				skip, _ := p.rewrap(startBuf, ASTMemberExpr, func() { p.ast.AddString(name) })
				if err := p.advance(false); err != nil {
					return err
				}
				if err := p.ast.CloseNode(skip); err != nil {
					return err
				}
				startBuf = skip - 1
			} else {
				if err := p.advance(true); err != nil {
					return err
				}
				skip, _ := p.rewrap(startBuf, ASTComputedMemberExpr, nil)
				if err := p.parseExpr(); err != nil {
					return err
				}
				if err := p.expectPunct("]"); err != nil {
					return err
				}
				if err := p.ast.CloseNode(skip); err != nil {
					return err
				}
				startBuf = skip - 1
			}
		}
	}
	count := 0
	if p.isPunct("(") {
		n, err := p.parseArguments()
		if err != nil {
			return err
		}
		count = n
	}
	skip, _ := p.rewrap(startBuf, ASTNewExpr, func() { p.ast.AddUint16(uint16(count)) })
	return p.ast.CloseNode(skip)
}

func (p *Parser) parsePrimary() error {
	switch {
	case p.tok.Kind == TokNumber:
		skip := p.ast.OpenNode(ASTNumberLit)
		p.ast.AddFloat64(p.tok.Num)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.tok.Kind == TokString:
		skip := p.ast.OpenNode(ASTStringLit)
		p.ast.AddString(p.tok.Value)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.tok.Kind == TokRegexp:
		skip := p.ast.OpenNode(ASTRegexpLit)
		p.ast.AddString(p.tok.Value)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isKeyword("true") || p.isKeyword("false"):
		skip := p.ast.OpenNode(ASTBooleanLit)
		if p.tok.Value == "true" {
			p.ast.AddByte(1)
		} else {
			p.ast.AddByte(0)
		}
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isKeyword("null"):
		skip := p.ast.OpenNode(ASTNullLit)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isKeyword("this"):
		skip := p.ast.OpenNode(ASTThisExpr)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isKeyword("function"):
		return p.parseFunction(ASTFunctionExpr, false)
	case p.tok.Kind == TokIdent:
		skip := p.ast.OpenNode(ASTIdentifier)
		p.ast.AddString(p.tok.Value)
		if err := p.advance(false); err != nil {
			return err
		}
		return p.ast.CloseNode(skip)
	case p.isPunct("("):
		if err := p.advance(true); err != nil {
			return err
		}
		if err := p.parseExpr(); err != nil {
			return err
		}
		return p.expectPunct(")")
	case p.isPunct("["):
		return p.parseArrayLit()
	case p.isPunct("{"):
		return p.parseObjectLit()
	default:
		return p.syntaxErrorf("unexpected token '" + p.tok.Value + "'")
	}
}

func (p *Parser) parseArrayLit() error {
	skip := p.ast.OpenNode(ASTArrayExpr)
	if err := p.advance(true); err != nil {
		return err
	}
	count := 0
	for !p.isPunct("]") {
		if err := p.parseAssignExpr(); err != nil {
			return err
		}
		count++
		if p.isPunct(",") {
			if err := p.advance(true); err != nil {
				return err
			}
		}
	}
	if err := p.expectPunct("]"); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseObjectLit() error {
	skip := p.ast.OpenNode(ASTObjectExpr)
	if err := p.advance(false); err != nil {
		return err
	}
	for !p.isPunct("}") {
		if err := p.parseProperty(); err != nil {
			return err
		}
		if p.isPunct(",") {
			if err := p.advance(false); err != nil {
				return err
			}
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) parseProperty() error {
	kind := byte(0)
	if (p.tok.Value == "get" || p.tok.Value == "set") && p.tok.Kind == TokIdent {
		accessor := p.tok.Value
		save := *p.lx
		saveTok := p.tok
		if err := p.advance(false); err != nil {
			return err
		}
		if !p.isPunct(":") && !p.isPunct(",") && !p.isPunct("}") {
			if accessor == "get" {
				kind = 1
			} else {
				kind = 2
			}
			name, err := p.propertyKeyName()
			if err != nil {
				return err
			}
			skip := p.ast.OpenNode(ASTProperty)
			p.ast.AddByte(kind)
			p.ast.AddString(name)
			if err := p.parseFunction(ASTFunctionExpr, false); err != nil {
				return err
			}
			return p.ast.CloseNode(skip)
		}
		*p.lx = save
		p.tok = saveTok
	}
	name, err := p.propertyKeyName()
	if err != nil {
		return err
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}
	skip := p.ast.OpenNode(ASTProperty)
	p.ast.AddByte(0)
	p.ast.AddString(name)
	if err := p.parseAssignExpr(); err != nil {
		return err
	}
	return p.ast.CloseNode(skip)
}

func (p *Parser) propertyKeyName() (string, error) {
	switch p.tok.Kind {
	case TokIdent, TokKeyword:
		name := p.tok.Value
		return name, p.advance(false)
	case TokString:
		name := p.tok.Value
		return name, p.advance(false)
	case TokNumber:
		name := NumberToString(p.tok.Num)
		return name, p.advance(false)
	default:
		return "", p.syntaxErrorf("expected property name")
	}
}
