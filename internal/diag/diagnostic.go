package diag

import (
	"l4idl/internal/source"
)

type Note struct {
	Loc source.Loc
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Loc
	Notes    []Note
}
