package script

import "github.com/alecthomas/participle/v2/lexer"

// Script is a parsed JTAG script. Statements may be separated by newlines or
// semicolons.
type Script struct {
	Statements []*Statement `( @@ Semicolon? )*`
}

// Statement is one line of work for the TAP.
//
//	reset             five TMS ones
//	idle [n]          go to Run-Test/Idle and clock n more times
//	tms 0110          clock TMS bits left to right
//	goto Shift-DR     shortest path to a state
//	ir 10 0x006       shift a value through IR and print the capture
//	dr 32             same for DR; the value defaults to 0
type Statement struct {
	Pos lexer.Position

	Reset bool  `  @KwReset`
	Idle  *Idle `| @@`
	TMS   *TMS  `| @@`
	GoTo  *GoTo `| @@`
	Scan  *Scan `| @@`
}

type Idle struct {
	Count *string `KwIdle @Number?`
}

type TMS struct {
	Bits string `KwTMS @Number`
}

type GoTo struct {
	State string `KwGoto @Ident`
}

// Scan shifts Value through the register selected by Reg.
type Scan struct {
	Reg    string  `@( KwIR | KwDR )`
	Length string  `@Number`
	Value  *string `@Number?`
}
