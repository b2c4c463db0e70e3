package script

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// ScriptLexer tokenizes JTAG scripts. Keywords are case-insensitive and
// must come before Ident.
var ScriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},

	{Name: "KwReset", Pattern: `(?i)\breset\b`},
	{Name: "KwIdle", Pattern: `(?i)\bidle\b`},
	{Name: "KwTMS", Pattern: `(?i)\btms\b`},
	{Name: "KwGoto", Pattern: `(?i)\bgoto\b`},
	{Name: "KwIR", Pattern: `(?i)\bir\b`},
	{Name: "KwDR", Pattern: `(?i)\bdr\b`},

	{Name: "Semicolon", Pattern: `;`},

	// 0x1F, 0b101, 0o17, 42 and bare bit strings such as 11111
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F_]+|0[bB][01_]+|0[oO][0-7_]+|[0-9]+`},

	// State names may be written Shift-DR, shift_dr or ShiftDR
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_\-/]*`},
})
