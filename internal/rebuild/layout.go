package rebuild

// Layout constants. Positions are a function of role, index and counts only;
// there is no persisted layout state to merge with.
const (
	// Non-grouped roles (storage, ai) stack in a single left column.
	leftColumnX    = 40.0
	leftColumnY0   = 40.0
	leftRowSpacing = 120.0

	// Grouped roles line up left to right in rebuild order, one column per
	// non-empty role.
	groupX0       = 300.0
	groupY        = 40.0
	groupSpacingX = 320.0

	// Children sit beneath their group parent with fixed vertical spacing.
	childOffsetX  = 20.0
	childOffsetY  = 80.0
	childSpacingY = 90.0
)
