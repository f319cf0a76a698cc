package model

import (
	"strconv"
	"strings"

	"telegram-referral-rewards/internal/domain"
)

// Telegram chat member statuses. The first three count as joined.
const (
	MemberStatusCreator       = "creator"
	MemberStatusAdministrator = "administrator"
	MemberStatusMember        = "member"
	MemberStatusRestricted    = "restricted"
	MemberStatusLeft          = "left"
	MemberStatusKicked        = "kicked"
)

// RequiredChannel is a channel every candidate must join.
type RequiredChannel struct {
	ChatID   int64
	Link     string
	Name     string
	Position int
}

func NewRequiredChannel(chatID int64, link, name string) (*RequiredChannel, error) {
	if !ValidChannelID(chatID) {
		return nil, domain.ErrInvalidChannelID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Channel"
	}
	return &RequiredChannel{ChatID: chatID, Link: NormalizeChannelLink(link), Name: name}, nil
}

// ValidChannelID accepts supergroup/channel ids of the form -100<digits>.
func ValidChannelID(chatID int64) bool {
	s := strconv.FormatInt(chatID, 10)
	return strings.HasPrefix(s, "-100") && len(s) > 4
}

// NormalizeChannelLink turns "@name" or "name" into a t.me URL.
func NormalizeChannelLink(link string) string {
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return ""
	case strings.HasPrefix(link, "https://"), strings.HasPrefix(link, "http://"):
		return link
	default:
		return "https://t.me/" + strings.TrimPrefix(link, "@")
	}
}

// IsJoinedStatus reports whether a chat member status counts as membership.
func IsJoinedStatus(status string) bool {
	switch status {
	case MemberStatusMember, MemberStatusAdministrator, MemberStatusCreator:
		return true
	}
	return false
}

// IsAdminStatus reports whether a status grants administrative rights.
func IsAdminStatus(status string) bool {
	return status == MemberStatusAdministrator || status == MemberStatusCreator
}
