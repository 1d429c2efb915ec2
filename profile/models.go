package profile

import "time"

type SubscriptionTier string

type SubscriptionStatus string

type ContactMethod string

const (
	TierBasic SubscriptionTier = "basic"

	StatusTrial SubscriptionStatus = "trial"

	ContactEmail ContactMethod = "email"
)

// AgentProfile mirrors the agent_profiles table.
type AgentProfile struct {
	UserID             string
	Name               string
	SubscriptionTier   SubscriptionTier
	SubscriptionStatus SubscriptionStatus
	CreatedAt          time.Time
}

// ClientProfile mirrors the client_profiles table.
type ClientProfile struct {
	UserID           string
	Name             string
	PreferredAreas   []string
	PreferredContact ContactMethod
	CreatedAt        time.Time
}

// NewAgentProfile returns the row written for a freshly registered agent.
func NewAgentProfile(userID, name string) AgentProfile {
	return AgentProfile{
		UserID:             userID,
		Name:               name,
		SubscriptionTier:   TierBasic,
		SubscriptionStatus: StatusTrial,
	}
}

// NewClientProfile returns the row written for a freshly registered client.
func NewClientProfile(userID, name string) ClientProfile {
	return ClientProfile{
		UserID:           userID,
		Name:             name,
		PreferredAreas:   []string{},
		PreferredContact: ContactEmail,
	}
}
