package metadata

import "math"

// EntryHandle identifies an entry of a StackMetadata. Handles are dense: the first entry is 0.
type EntryHandle int

const (
	NoEntry EntryHandle = math.MaxInt
)

// Shape is the number of descriptors and out-of-line words an entry needs
type Shape struct {
	CBs         int
	BottomWords int
	TopWords    int
}

// Entry describes the ranges held by one entry. Descriptors occupy [BottomCB, BottomCB+Shape.CBs),
// bottom words occupy [BottomOOL, BottomOOL+Shape.BottomWords) and top words are handed out
// downward from TopOOL, so they occupy [TopOOL-Shape.TopWords, TopOOL).
type Entry struct {
	Shape
	BottomCB  int
	BottomOOL int
	TopOOL    int
	UserData  any
	Deleted   bool
}

// TopCB is the index of the entry's last descriptor
func (e Entry) TopCB() int {
	return e.BottomCB + e.CBs - 1
}
