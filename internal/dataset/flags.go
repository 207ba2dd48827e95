package dataset

// FlagState is a flag annotators can raise on a dataset item.
type FlagState string

// Valid flag states.
const (
	FlagIssue      FlagState = "issue"
	FlagUncertain  FlagState = "uncertain"
	FlagQuality    FlagState = "quality"
	FlagDiscussion FlagState = "discussion"
)

// Flag filter sentinels. FlagFilterEverything disables flag filtering;
// FlagFilterNoFlags selects items without any flag.
const (
	FlagFilterEverything = "everything"
	FlagFilterNoFlags    = "no_flags"
)

var validFlagStates = map[FlagState]bool{
	FlagIssue:      true,
	FlagUncertain:  true,
	FlagQuality:    true,
	FlagDiscussion: true,
}

// ValidFlagState reports whether s is a known flag state.
func ValidFlagState(s string) bool {
	return validFlagStates[FlagState(s)]
}

// HasAnyFlagState reports whether the item carries at least one flag whose
// state is in the set.
func (d *DatasetItem) HasAnyFlagState(states map[FlagState]bool) bool {
	for _, f := range d.Flags {
		if states[f.State] {
			return true
		}
	}
	return false
}

// FlagStatesBy returns the states of flags raised by the given user, in
// the order they appear on the item. Never nil.
func (d *DatasetItem) FlagStatesBy(username string) []FlagState {
	out := []FlagState{}
	for _, f := range d.Flags {
		if f.CreatedBy == username {
			out = append(out, f.State)
		}
	}
	return out
}

// SavedBy reports whether exactly one save state exists for the user.
func (d *DatasetItem) SavedBy(username string) bool {
	n := 0
	for _, s := range d.SaveStates {
		if s.CreatedBy == username {
			n++
		}
	}
	return n == 1
}
