package domain

// TeamMetrics summarizes a team's recent ticket performance for the manager
// dashboard.
type TeamMetrics struct {
	TotalTickets           int
	OpenTickets            int
	ProcessedTickets       int
	ResolvedTickets        int
	ReopenedTickets        int
	AvgResolutionTimeHours float64
	ReopenRate             float64
	TeamMembers            []TeamMember
}
