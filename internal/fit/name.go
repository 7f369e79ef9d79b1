package fit

import (
	"fmt"
	"strings"
	"time"
)

// Filename builds the deterministic artifact name
// {origin}_{part?}_{timestamp}.{ext}. The part component is included only
// when the session produced more than one artifact.
func Filename(origin string, at time.Time, part, total int, ext string) string {
	o := sanitizeOrigin(origin)
	ts := at.UTC().Format("20060102T150405")
	if total > 1 {
		return fmt.Sprintf("%s_%d_%s.%s", o, part, ts, ext)
	}
	return fmt.Sprintf("%s_%s.%s", o, ts, ext)
}

// sanitizeOrigin reduces a page origin to filesystem-safe characters.
func sanitizeOrigin(origin string) string {
	s := origin
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSuffix(s, "/")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "page"
	}
	return b.String()
}
