package ir

type (
	// Node is one of the variants below. The set is closed.
	Node interface {
		accept(v Visitor, id ID) error
	}

	// Visitor has a method per Node variant.
	Visitor interface {
		Block(id ID, x Block) error
		DefinitionList(id ID, x DefinitionList) error
		FunctionDef(id ID, x FunctionDef) error
		StatList(id ID, x StatList) error
		BinStat(id ID, x BinStat) error
		UnaryStat(id ID, x UnaryStat) error
		LoadImmStat(id ID, x LoadImmStat) error
		LoadStat(id ID, x LoadStat) error
		StoreStat(id ID, x StoreStat) error
		LoadAddressOf(id ID, x LoadAddressOf) error
		PrintStat(id ID, x PrintStat) error
		ReadStat(id ID, x ReadStat) error
		BranchStat(id ID, x BranchStat) error
		EmptyStat(id ID, x EmptyStat) error
	}

	Block struct {
		Locals    []Sym
		Body      ID
		Defs      ID
		StackRoom int
	}

	DefinitionList struct {
		Defs []ID
	}

	FunctionDef struct {
		Symbol Sym
		Body   ID
	}

	StatList struct {
		Stats []ID
	}

	BinStat struct {
		Op   Op
		A, B Sym
		Dest Sym
	}

	UnaryStat struct {
		Op   Op
		Src  Sym
		Dest Sym
	}

	LoadImmStat struct {
		Dest  Sym
		Value int64
	}

	LoadStat struct {
		Symbol Sym
		Dest   Sym
	}

	// StoreStat writes the value Src holds into the location Symbol names.
	StoreStat struct {
		Src    Sym
		Symbol Sym
	}

	LoadAddressOf struct {
		Dest   Sym
		Symbol Sym
	}

	PrintStat struct {
		Src Sym
	}

	ReadStat struct {
		Dest Sym
	}

	BranchStat struct {
		Target Label
		Cond   Sym
		Call   bool
	}

	EmptyStat struct{}
)

func (x Block) accept(v Visitor, id ID) error          { return v.Block(id, x) }
func (x DefinitionList) accept(v Visitor, id ID) error { return v.DefinitionList(id, x) }
func (x FunctionDef) accept(v Visitor, id ID) error    { return v.FunctionDef(id, x) }
func (x StatList) accept(v Visitor, id ID) error       { return v.StatList(id, x) }
func (x BinStat) accept(v Visitor, id ID) error        { return v.BinStat(id, x) }
func (x UnaryStat) accept(v Visitor, id ID) error      { return v.UnaryStat(id, x) }
func (x LoadImmStat) accept(v Visitor, id ID) error    { return v.LoadImmStat(id, x) }
func (x LoadStat) accept(v Visitor, id ID) error       { return v.LoadStat(id, x) }
func (x StoreStat) accept(v Visitor, id ID) error      { return v.StoreStat(id, x) }
func (x LoadAddressOf) accept(v Visitor, id ID) error  { return v.LoadAddressOf(id, x) }
func (x PrintStat) accept(v Visitor, id ID) error      { return v.PrintStat(id, x) }
func (x ReadStat) accept(v Visitor, id ID) error       { return v.ReadStat(id, x) }
func (x BranchStat) accept(v Visitor, id ID) error     { return v.BranchStat(id, x) }
func (x EmptyStat) accept(v Visitor, id ID) error      { return v.EmptyStat(id, x) }

// Children returns the nodes a container owns.
func Children(n Node) []ID {
	switch x := n.(type) {
	case Block:
		return nonNil(x.Body, x.Defs)
	case DefinitionList:
		return x.Defs
	case FunctionDef:
		return nonNil(x.Body)
	case StatList:
		return x.Stats
	default:
		return nil
	}
}

// Kind is the variant name, used in annotations and diagnostics.
func Kind(n Node) string {
	switch n.(type) {
	case Block:
		return "Block"
	case DefinitionList:
		return "DefinitionList"
	case FunctionDef:
		return "FunctionDef"
	case StatList:
		return "StatList"
	case BinStat:
		return "BinStat"
	case UnaryStat:
		return "UnaryStat"
	case LoadImmStat:
		return "LoadImmStat"
	case LoadStat:
		return "LoadStat"
	case StoreStat:
		return "StoreStat"
	case LoadAddressOf:
		return "LoadAddressOf"
	case PrintStat:
		return "PrintStat"
	case ReadStat:
		return "ReadStat"
	case BranchStat:
		return "BranchStat"
	case EmptyStat:
		return "EmptyStat"
	default:
		return "unknown"
	}
}

func nonNil(ids ...ID) []ID {
	r := ids[:0]

	for _, id := range ids {
		if id != Nil {
			r = append(r, id)
		}
	}

	return r
}
