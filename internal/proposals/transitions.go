package proposals

import (
	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// allowedTransitions is the single source of truth for the proposal state
// machine. Approved and rejected are terminal; a revision request keeps the
// proposal open so the client can still approve or reject a revised version.
var allowedTransitions = map[enums.ProposalStatus][]enums.ProposalStatus{
	enums.ProposalStatusDraft:    {enums.ProposalStatusSent},
	enums.ProposalStatusSent:     {enums.ProposalStatusViewed, enums.ProposalStatusApproved, enums.ProposalStatusRejected, enums.ProposalStatusRevised},
	enums.ProposalStatusViewed:   {enums.ProposalStatusApproved, enums.ProposalStatusRejected, enums.ProposalStatusRevised},
	enums.ProposalStatusRevised:  {enums.ProposalStatusApproved, enums.ProposalStatusRejected, enums.ProposalStatusRevised},
	enums.ProposalStatusApproved: {},
	enums.ProposalStatusRejected: {},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to enums.ProposalStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// responseStatuses are the statuses a visitor may set through a response.
var responseStatuses = map[enums.ProposalStatus]bool{
	enums.ProposalStatusApproved: true,
	enums.ProposalStatusRejected: true,
	enums.ProposalStatusRevised:  true,
}

// IsResponseStatus reports whether a status can be reached via visitor response.
func IsResponseStatus(status enums.ProposalStatus) bool {
	return responseStatuses[status]
}
