package parse

import (
	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

// Unnamed groups are skipped by the lexer.
const LexerRegex = `(?s)(\s+)|(#[^\n]*)|` +
	`(?P<Int>-?(?:0[xX][0-9a-fA-F]+|\d+))|` +
	`(?P<Label>[a-zA-Z_.$][a-zA-Z0-9_.$]*:)|` +
	`(?P<Ident>[a-zA-Z_.$][a-zA-Z0-9_.$]*)|` +
	`(?P<Punct>[{}\[\],])`

type (
	file struct {
		Pos lexer.Position

		Block *block `"program" @@`
	}

	block struct {
		Pos lexer.Position

		StackRoom string      `"block" @Int "{"`
		Syms      []*symDecl  `{ @@ }`
		Body      []*stmt     `"body" "{" { @@ } "}"`
		Defs      []*funcDecl `{ @@ } "}"`
	}

	funcDecl struct {
		Pos lexer.Position

		Name  string `"def" @Ident`
		Block *block `@@`
	}

	symDecl struct {
		Pos lexer.Position

		Name string    `"sym" @Ident`
		Type *typeExpr `@@`

		Reg    bool   `( @"reg"`
		Extern bool   `| @"extern"`
		Global bool   `| @"global"`
		Link   string `  @Ident`
		Size   string `  @Int`
		Local  bool   `| @"local"`
		Offset string `  @Int`
		As     string `  [ "as" @Ident ] )`
	}

	typeExpr struct {
		Ptr  *typeExpr `  "ptr" @@`
		Dims []string  `| "array" "[" @Int { "," @Int } "]"`
		Elem *typeExpr `  @@`
		Name string    `| @Ident`
	}

	stmt struct {
		Pos lexer.Position

		Label string `[ @Label ]`

		Bin   *binStmt    `( "bin" @@`
		Un    *unStmt     `| "un" @@`
		Imm   *immStmt    `| "imm" @@`
		Load  *pairStmt   `| "load" @@`
		Store *pairStmt   `| "store" @@`
		Addr  *pairStmt   `| "addr" @@`
		Print string      `| "print" @Ident`
		Read  string      `| "read" @Ident`
		Jump  *branchStmt `| "jump" @@`
		Call  *branchStmt `| "call" @@`
		Empty bool        `| @"empty" )`
	}

	binStmt struct {
		Op   string `@Ident`
		Dest string `@Ident`
		A    string `@Ident`
		B    string `@Ident`
	}

	unStmt struct {
		Op   string `@Ident`
		Dest string `@Ident`
		Src  string `@Ident`
	}

	immStmt struct {
		Dest  string `@Ident`
		Value string `@Int`
	}

	// pairStmt is the destination followed by the source, as written.
	pairStmt struct {
		X string `@Ident`
		Y string `@Ident`
	}

	branchStmt struct {
		Target string `@Ident`
		Cond   string `[ "if" @Ident ]`
	}
)

var grammar = participle.MustBuild(
	&file{},
	participle.Lexer(lexer.Must(lexer.Regexp(LexerRegex))),
	participle.UseLookahead(2),
)
