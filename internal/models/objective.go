package models

import "strings"

// Objective is the advertiser's campaign goal, platform-agnostic.
// Each adapter maps it to that platform's native objective vocabulary.
type Objective string

const (
	ObjectiveReach      Objective = "reach"
	ObjectiveLeads      Objective = "leads"
	ObjectiveSales      Objective = "sales"
	ObjectiveEngagement Objective = "engagement"
	ObjectiveTraffic    Objective = "traffic"
)

// ParseObjective resolves a free-form goal string to an Objective,
// ignoring case. Unmapped values resolve to ObjectiveReach rather than
// an error; upstream goal taxonomies change often and a conservative
// default is preferable to rejecting a deployment.
func ParseObjective(s string) Objective {
	o := Objective(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case ObjectiveReach, ObjectiveLeads, ObjectiveSales, ObjectiveEngagement, ObjectiveTraffic:
		return o
	}
	return ObjectiveReach
}
