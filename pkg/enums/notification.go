package enums

import "fmt"

// NotificationType discriminates the in-app notification feed entries.
type NotificationType string

const (
	NotificationTypeProjectInvite  NotificationType = "project_invite"
	NotificationTypePDFAdded       NotificationType = "pdf_added"
	NotificationTypeProjectUpdated NotificationType = "project_updated"
	NotificationTypeChatMessage    NotificationType = "chat_message"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeProjectInvite,
	NotificationTypePDFAdded,
	NotificationTypeProjectUpdated,
	NotificationTypeChatMessage,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
