package models

import (
	"time"

	"github.com/lmarchetti/taskhive-notifier/pkg/enums"
)

// User mirrors the users/{uid} documents owned by the application.
type User struct {
	DisplayName          string `firestore:"displayName"`
	Email                string `firestore:"email"`
	FCMToken             string `firestore:"fcmToken"`
	NotificationsEnabled *bool  `firestore:"notificationsEnabled"`
}

// PushEnabled reports whether the user accepts pushes. An absent flag means enabled.
func (u User) PushEnabled() bool {
	return u.NotificationsEnabled == nil || *u.NotificationsEnabled
}

// Name returns the best display label for the user.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return "Someone"
}

// Collaborator is a member entry embedded in a project document.
type Collaborator struct {
	UID   string `firestore:"uid" json:"uid"`
	Email string `firestore:"email" json:"email"`
}

// ProjectFile is an attached-file entry embedded in a project document.
type ProjectFile struct {
	FileName string `firestore:"fileName" json:"fileName"`
	FileURL  string `firestore:"fileUrl" json:"fileUrl"`
}

// Project mirrors the projects/{projectId} documents. Projects carry arbitrary
// extra fields beyond these; diffing works on the raw snapshot maps.
type Project struct {
	Title         string         `firestore:"title"`
	Collaborators []Collaborator `firestore:"collaborators"`
	Files         []ProjectFile  `firestore:"files"`
}

// TitleOrDefault guards against projects saved without a title.
func (p Project) TitleOrDefault() string {
	if p.Title != "" {
		return p.Title
	}
	return "a project"
}

// Invite mirrors pending_requests/{inviteeEmail}/requests/{inviteId} documents.
type Invite struct {
	ProjectID string `firestore:"projectId" json:"projectId"`
	InvitedBy string `firestore:"invitedBy" json:"invitedBy"`
	Role      string `firestore:"role" json:"role"`
}

// RoleOrDefault returns the requested role, defaulting to Member.
func (i Invite) RoleOrDefault() string {
	if i.Role != "" {
		return i.Role
	}
	return "Member"
}

// ChatMessage mirrors projects/{projectId}/messages/{messageId} documents.
type ChatMessage struct {
	SenderID   string `firestore:"senderId" json:"senderId"`
	SenderName string `firestore:"senderName" json:"senderName"`
	Text       string `firestore:"text" json:"text"`
}

// Notification is the only document kind this service creates, stored under
// notifications/{recipientEmail}/items/{id}. Records are append-only: nothing
// here ever updates one or clears Unread.
type Notification struct {
	Title     string                 `firestore:"title"`
	SubTitle  string                 `firestore:"subTitle"`
	Time      time.Time              `firestore:"time,serverTimestamp"`
	Unread    bool                   `firestore:"unread"`
	Type      enums.NotificationType `firestore:"type"`
	ProjectID string                 `firestore:"projectId,omitempty"`
	InviteID  string                 `firestore:"inviteId,omitempty"`
	MessageID string                 `firestore:"messageId,omitempty"`
	SenderID  string                 `firestore:"senderId,omitempty"`
}
