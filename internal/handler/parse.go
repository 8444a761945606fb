// Package handler provides Telegram bot command handlers.
package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Argument errors shown to the sender.
var (
	errMissingGame   = errors.New("❌ Please name a game")
	errInvalidToggle = errors.New("❌ Use on or off")
	errInvalidID     = errors.New("❌ IDs must be positive numbers")
)

// parseID reads a positive numeric id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// parseIDs reads every argument as an id.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseToggle reads on/off style switches.
func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "true", "1":
		return true, nil
	case "off", "no", "false", "0":
		return false, nil
	}
	return false, errInvalidToggle
}

// splitTrailingDates separates a game name, which may contain spaces,
// from up to max trailing YYYY-MM-DD arguments.
func splitTrailingDates(args []string, max int, loc *time.Location) (string, []time.Time, error) {
	var dates []time.Time
	end := len(args)
	for end > 0 && len(dates) < max {
		d, err := time.ParseInLocation(time.DateOnly, args[end-1], loc)
		if err != nil {
			break
		}
		dates = append([]time.Time{d}, dates...)
		end--
	}

	name := strings.TrimSpace(strings.Join(args[:end], " "))
	if name == "" {
		return "", nil, errMissingGame
	}
	return name, dates, nil
}

// splitToggle separates a game name from a trailing on/off switch.
func splitToggle(args []string) (string, bool, error) {
	if len(args) < 2 {
		return "", false, errMissingGame
	}
	on, err := parseToggle(args[len(args)-1])
	if err != nil {
		return "", false, err
	}
	return strings.Join(args[:len(args)-1], " "), on, nil
}
