package target

import (
	"fmt"
	"strings"
)

// Family is the L4 protocol generation / register convention.
type Family uint8

const (
	FamilyV2 Family = iota + 1 // L4 version 2: 64-bit thread ids, two short words
	FamilyX0                   // L4 X.0: 32-bit thread ids, three short words
)

func (f Family) String() string {
	switch f {
	case FamilyV2:
		return "v2"
	case FamilyX0:
		return "x0"
	}
	return "unknown"
}

// Arch is the processor target.
type Arch uint8

const (
	ArchIA32 Arch = iota + 1
	ArchAMD64
	ArchARM
)

func (a Arch) String() string {
	switch a {
	case ArchIA32:
		return "ia32"
	case ArchAMD64:
		return "amd64"
	case ArchARM:
		return "arm"
	}
	return "unknown"
}

// CodeModel selects position-independent or absolute addressing.
type CodeModel uint8

const (
	CodeAbsolute CodeModel = iota + 1
	CodePIC
)

func (c CodeModel) String() string {
	switch c {
	case CodeAbsolute:
		return "abs"
	case CodePIC:
		return "pic"
	}
	return "unknown"
}

// Profile is the closed (family, arch, code model) triple used to pick an
// emission strategy.
type Profile struct {
	Family Family
	Arch   Arch
	Code   CodeModel
}

func (p Profile) String() string {
	return p.Family.String() + "-" + p.Arch.String() + "-" + p.Code.String()
}

// Valid reports whether every component is known.
func (p Profile) Valid() bool {
	return p.Family >= FamilyV2 && p.Family <= FamilyX0 &&
		p.Arch >= ArchIA32 && p.Arch <= ArchARM &&
		p.Code >= CodeAbsolute && p.Code <= CodePIC
}

// ParseFamily accepts "v2" and "x0".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v2", "l4v2":
		return FamilyV2, nil
	case "x0", "l4x0":
		return FamilyX0, nil
	}
	return 0, fmt.Errorf("invalid family: %q (expected: v2|x0)", s)
}

// ParseArch accepts "ia32", "amd64" and "arm" plus common aliases.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ia32", "x86", "i386":
		return ArchIA32, nil
	case "amd64", "x86_64":
		return ArchAMD64, nil
	case "arm":
		return ArchARM, nil
	}
	return 0, fmt.Errorf("invalid arch: %q (expected: ia32|amd64|arm)", s)
}

// ParseCodeModel accepts "pic" and "abs".
func ParseCodeModel(s string) (CodeModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "abs", "absolute", "nopic":
		return CodeAbsolute, nil
	case "pic":
		return CodePIC, nil
	}
	return 0, fmt.Errorf("invalid code model: %q (expected: abs|pic)", s)
}

// ParseProfile reads "family-arch-codemodel", e.g. "v2-ia32-pic".
func ParseProfile(s string) (Profile, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Profile{}, fmt.Errorf("invalid target profile %q (expected family-arch-codemodel)", s)
	}
	f, err := ParseFamily(parts[0])
	if err != nil {
		return Profile{}, err
	}
	a, err := ParseArch(parts[1])
	if err != nil {
		return Profile{}, err
	}
	c, err := ParseCodeModel(parts[2])
	if err != nil {
		return Profile{}, err
	}
	return Profile{Family: f, Arch: a, Code: c}, nil
}

// All lists every valid profile in a stable order.
func All() []Profile {
	out := make([]Profile, 0, 12)
	for f := FamilyV2; f <= FamilyX0; f++ {
		for a := ArchIA32; a <= ArchARM; a++ {
			for c := CodeAbsolute; c <= CodePIC; c++ {
				out = append(out, Profile{Family: f, Arch: a, Code: c})
			}
		}
	}
	return out
}
