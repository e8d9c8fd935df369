package idlfile

// The on-disk schema. TOML uses arrays of tables ([[interface]],
// [[interface.operation]], [[interface.operation.param]]); YAML uses the
// same keys as sequences.

type rawFile struct {
	Types      []rawType      `toml:"type" yaml:"type"`
	Interfaces []rawInterface `toml:"interface" yaml:"interface"`
}

type rawType struct {
	Name    string     `toml:"name" yaml:"name"`
	Kind    string     `toml:"kind" yaml:"kind"` // struct or union
	Typedef bool       `toml:"typedef" yaml:"typedef"`
	Members []rawParam `toml:"member" yaml:"member"`
}

type rawInterface struct {
	Name       string   `toml:"name" yaml:"name"`
	Number     int      `toml:"number" yaml:"number"`
	Bases      []string `toml:"bases" yaml:"bases"`
	Operations []rawOp  `toml:"operation" yaml:"operation"`
}

type rawOp struct {
	Name   string     `toml:"name" yaml:"name"`
	Return string     `toml:"return" yaml:"return"`
	Attrs  []string   `toml:"attrs" yaml:"attrs"`
	Params []rawParam `toml:"param" yaml:"param"`
}

type rawParam struct {
	Name   string   `toml:"name" yaml:"name"`
	Type   string   `toml:"type" yaml:"type"`
	Stars  int      `toml:"stars" yaml:"stars"`
	Bounds []string `toml:"bounds" yaml:"bounds"` // "16", "len" or "" for []
	Attrs  []string `toml:"attrs" yaml:"attrs"`
}
