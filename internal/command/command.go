// Package command parses the /tars slash command and builds its replies.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

type Kind string

const (
	KindAnalyze Kind = "analyze"
	KindHelp    Kind = "help"
	KindStatus  Kind = "status"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidRange   = errors.New("invalid time range")
)

type Command struct {
	Kind   Kind
	Window time.Duration // analyze only
}

// Parse understands "", "analyze", "analyze N" (hours), "analyze Nd" (days),
// "help" and "status". Ranges must be positive and no longer than maxWindow.
func Parse(text string, maxWindow time.Duration) (Command, error) {
	if maxWindow <= 0 {
		maxWindow = model.DefaultMaxWindow
	}

	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return Command{Kind: KindAnalyze, Window: model.DefaultWindow}, nil
	}

	switch Kind(fields[0]) {
	case KindHelp:
		return Command{Kind: KindHelp}, nil
	case KindStatus:
		return Command{Kind: KindStatus}, nil
	case KindAnalyze:
		if len(fields) == 1 {
			return Command{Kind: KindAnalyze, Window: model.DefaultWindow}, nil
		}
		if len(fields) > 2 {
			return Command{}, fmt.Errorf("%w: expected one range argument", ErrInvalidRange)
		}
		window, err := parseRange(fields[1], maxWindow)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: KindAnalyze, Window: window}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
}

// parseRange bounds the count before converting it, so huge counts cannot
// wrap around into a short duration.
func parseRange(spec string, maxWindow time.Duration) (time.Duration, error) {
	unit := time.Hour
	digits := spec
	if strings.HasSuffix(spec, "d") {
		unit = 24 * time.Hour
		digits = strings.TrimSuffix(spec, "d")
	} else if strings.HasSuffix(spec, "h") {
		digits = strings.TrimSuffix(spec, "h")
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRange, spec)
	}
	if n > int(maxWindow/unit) {
		return 0, fmt.Errorf("%w: %s exceeds the maximum of %s", ErrInvalidRange, spec, FormatRange(maxWindow))
	}
	return time.Duration(n) * unit, nil
}

// FormatRange renders whole days as "N days" and anything else in hours.
func FormatRange(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours >= 24 && hours%24 == 0 {
		days := hours / 24
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	}
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
