package handlers

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/bizwatch-bot/internal/subscription"
)

// parseCommand splits "/cmd@bot a b" into "/cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func firstUserID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	return parseUserID(args[0])
}

// parseGrantArgs reads "<id> <days>" where days is positive or -1 for eternal.
func parseGrantArgs(args []string) (int64, int, bool) {
	if len(args) < 2 {
		return 0, 0, false
	}
	id, ok := parseUserID(args[0])
	if !ok {
		return 0, 0, false
	}
	days, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || (days <= 0 && days != subscription.Eternal) {
		return 0, 0, false
	}
	return id, days, true
}

func isChannelMember(m *models.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	}
	return false
}
