package parse

import (
	"fmt"
	"regexp"
	"strings"

	"rental-availability-backend/internal/domain"
)

var (
	availableRe   = regexp.MustCompile(`(?i)^(available|active|in[ _-]?stock|ok|ready)$`)
	maintenanceRe = regexp.MustCompile(`(?i)^(maint(enance)?\.?|in[ _-]?maintenance|repair(ing)?|in[ _-]?repair|out[ _-]?of[ _-]?service|broken|damaged)$`)
	retiredRe     = regexp.MustCompile(`(?i)^(retired|decommissioned|disposed|sold|lost|written[ _-]?off)$`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// Status maps an upstream equipment status label onto the engine's three states.
func Status(raw string) (domain.ResourceStatus, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	switch {
	case s == "":
		return domain.StatusAvailable, nil
	case availableRe.MatchString(s):
		return domain.StatusAvailable, nil
	case maintenanceRe.MatchString(s):
		return domain.StatusMaintenance, nil
	case retiredRe.MatchString(s):
		return domain.StatusRetired, nil
	}
	return "", fmt.Errorf("unknown equipment status: %q", raw)
}

// List splits a comma or semicolon separated id list, dropping blanks and duplicates.
func List(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
