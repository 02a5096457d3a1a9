package enums

import "fmt"

// NotificationType labels entries in the admin notification feed.
type NotificationType string

const (
	NotificationProposalApproved  NotificationType = "proposal_approved"
	NotificationProposalRejected  NotificationType = "proposal_rejected"
	NotificationRevisionRequested NotificationType = "revision_requested"
	NotificationNewComment        NotificationType = "new_comment"
	NotificationGalleryAccessed   NotificationType = "gallery_accessed"
)

var validNotificationTypes = []NotificationType{
	NotificationProposalApproved,
	NotificationProposalRejected,
	NotificationRevisionRequested,
	NotificationNewComment,
	NotificationGalleryAccessed,
}

func (n NotificationType) String() string {
	return string(n)
}

func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
