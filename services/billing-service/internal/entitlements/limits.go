package entitlements

// Limits is the entitlement set derived from a subscription tier. Other
// services enforce these caps, so changes here are effectively contract
// changes.
type Limits struct {
	Tier                string `json:"tier"`
	MaxAgents           int32  `json:"max_agents"`
	MaxKnowledgeSources int32  `json:"max_knowledge_sources"`
	MaxMonthlyMessages  int32  `json:"max_monthly_messages"`
}

func LimitsForTier(tier string) Limits {
	switch tier {
	case "starter":
		return Limits{
			Tier:                "starter",
			MaxAgents:           3,
			MaxKnowledgeSources: 25,
			MaxMonthlyMessages:  5000,
		}
	case "pro":
		return Limits{
			Tier:                "pro",
			MaxAgents:           10,
			MaxKnowledgeSources: 200,
			MaxMonthlyMessages:  50000,
		}
	default:
		return Limits{
			Tier:                "free",
			MaxAgents:           1,
			MaxKnowledgeSources: 3,
			MaxMonthlyMessages:  500,
		}
	}
}
