package sequencer

const (
	CrossText  = "+"
	ColorCross = "black"
	ShadeA     = "lightblue"
	ShadeB     = "blue"
)

type Role string

const (
	RoleCross Role = "cross"
	RoleWord  Role = "word"
)

type pairStep struct {
	Role  Role
	Word  int // 1 or 2; 0 for crosses
	Color string
	Again bool
	Note  string
}

// PairOrder is the fixed presentation order of one word pair.
var PairOrder = []pairStep{
	{Role: RoleCross, Color: ColorCross, Note: "before first word"},
	{Role: RoleWord, Word: 1, Color: ShadeA},
	{Role: RoleCross, Color: ColorCross, Note: "repeating first word"},
	{Role: RoleWord, Word: 1, Color: ShadeB, Again: true},
	{Role: RoleCross, Color: ColorCross, Note: "transitioning to second word"},
	{Role: RoleWord, Word: 2, Color: ShadeA},
	{Role: RoleCross, Color: ColorCross, Note: "repeating second word"},
	{Role: RoleWord, Word: 2, Color: ShadeB, Again: true},
}

const boundaryNote = "before first word"
