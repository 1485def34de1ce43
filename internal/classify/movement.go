package classify

// ClassifyMovement grades consumption velocity over the trailing window.
// Velocity is window issues over current stock, with the zero-stock cases
// handled up front instead of dividing. Zero stock with zero issues is dead
// stock outright; zero stock with issues means the item turned over entirely
// within the window and grades as fast moving.
func ClassifyMovement(currentStock, windowIssues, fastVelocity, mediumVelocity float64) MovementResult {
	if currentStock <= 0 {
		if windowIssues <= 0 {
			return MovementResult{Class: MovementDead}
		}
		// Velocity degrades to the raw issue count; annualize it the same
		// way the divided form below is.
		return MovementResult{Class: MovementFast, Velocity: windowIssues, TurnoverRatio: windowIssues * 12}
	}

	velocity := windowIssues / currentStock
	turnover := windowIssues * 12 / currentStock

	class := MovementDead
	switch {
	case velocity >= fastVelocity:
		class = MovementFast
	case velocity >= mediumVelocity:
		class = MovementMedium
	case velocity > 0:
		class = MovementSlow
	}
	return MovementResult{Class: class, Velocity: velocity, TurnoverRatio: turnover}
}
