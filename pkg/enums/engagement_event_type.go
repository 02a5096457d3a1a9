package enums

import "fmt"

// EngagementEventType is the closed set of visitor interaction events.
type EngagementEventType string

const (
	EventProposalViewed          EngagementEventType = "proposal_viewed"
	EventProposalSectionViewed   EngagementEventType = "proposal_section_viewed"
	EventProposalTimeSpent       EngagementEventType = "proposal_time_spent"
	EventMediaViewed             EngagementEventType = "media_viewed"
	EventMediaDownloaded         EngagementEventType = "media_downloaded"
	EventProposalApproved        EngagementEventType = "proposal_approved"
	EventProposalRejected        EngagementEventType = "proposal_rejected"
	EventProposalRevisionRequest EngagementEventType = "proposal_revision_requested"
	EventProposalComment         EngagementEventType = "proposal_comment"
	EventProposalShared          EngagementEventType = "proposal_shared"
)

var validEngagementEventTypes = []EngagementEventType{
	EventProposalViewed,
	EventProposalSectionViewed,
	EventProposalTimeSpent,
	EventMediaViewed,
	EventMediaDownloaded,
	EventProposalApproved,
	EventProposalRejected,
	EventProposalRevisionRequest,
	EventProposalComment,
	EventProposalShared,
}

func (e EngagementEventType) String() string {
	return string(e)
}

func (e EngagementEventType) IsValid() bool {
	for _, candidate := range validEngagementEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEngagementEventType converts raw input into an EngagementEventType.
func ParseEngagementEventType(value string) (EngagementEventType, error) {
	for _, candidate := range validEngagementEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid engagement event type %q", value)
}
