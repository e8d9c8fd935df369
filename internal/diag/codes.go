package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Interface descriptions
	DescInfo               Code = 1000
	DescSyntax             Code = 1001
	DescUnknownType        Code = 1002
	DescUnknownAttribute   Code = 1003
	DescAttributeMisplaced Code = 1004
	DescDuplicateOperation Code = 1005
	DescDuplicateParameter Code = 1006
	DescUnresolvedRef      Code = 1007
	DescUnknownBase        Code = 1008
	DescBadBound           Code = 1009
	DescInheritanceCycle   Code = 1010
	DescMissingField       Code = 1011

	// Layout planning
	LayInfo           Code = 2000
	LayOverflow       Code = 2001
	LayMissingElement Code = 2002
	LayNoMaxSize      Code = 2003
	LayUnsupported    Code = 2004

	// Marshalling
	MarInfo          Code = 3000
	MarPathTooDeep   Code = 3001
	MarNoSizeSource  Code = 3002
	MarUnsupported   Code = 3003
	MarCounterMisuse Code = 3004

	// Communication emission
	ComInfo          Code = 4000
	ComNoStrategy    Code = 4001
	ComBadState      Code = 4002
	ComUnsupportedOp Code = 4003

	// Driver and configuration
	DrvInfo       Code = 5000
	DrvBadConfig  Code = 5001
	DrvIO         Code = 5002
	DrvCacheError Code = 5003

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var codeDescription = map[Code]string{
	UnknownCode:            "Unknown error",
	DescInfo:               "Description information",
	DescSyntax:             "Malformed interface description",
	DescUnknownType:        "Unknown type",
	DescUnknownAttribute:   "Unknown attribute",
	DescAttributeMisplaced: "Attribute not allowed here",
	DescDuplicateOperation: "Duplicate operation",
	DescDuplicateParameter: "Duplicate parameter",
	DescUnresolvedRef:      "Attribute refers to an unknown declarator",
	DescUnknownBase:        "Unknown base interface",
	DescBadBound:           "Invalid array bound",
	DescInheritanceCycle:   "Interface inheritance cycle",
	DescMissingField:       "Missing required field",
	LayInfo:                "Layout information",
	LayOverflow:            "Message exceeds transfer capacity",
	LayMissingElement:      "Layout element missing",
	LayNoMaxSize:           "No maximum size for variable-sized parameter",
	LayUnsupported:         "Parameter cannot be laid out",
	MarInfo:                "Marshalling information",
	MarPathTooDeep:         "Declarator nesting too deep",
	MarNoSizeSource:        "No size source for indirect string",
	MarUnsupported:         "Parameter cannot be marshalled",
	MarCounterMisuse:       "Marshal counters out of sync with layout",
	ComInfo:                "Emitter information",
	ComNoStrategy:          "No emission strategy for target profile",
	ComBadState:            "Emitter used out of order",
	ComUnsupportedOp:       "Invocation kind not supported by strategy",
	DrvInfo:                "Driver information",
	DrvBadConfig:           "Invalid configuration",
	DrvIO:                  "I/O error",
	DrvCacheError:          "Layout cache error",
	ObsInfo:                "Observability information",
	ObsTimings:             "Timings",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("IDL%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("LAY%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("MAR%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("COM%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("DRV%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
