package automation

import (
	"strconv"
	"strings"
)

// Exit direction words used in announcements.
const (
	exitLeft  = "links"
	exitRight = "rechts"
)

// ResolveAnnouncement substitutes station placeholders into an announcement
// template.
//
// Recognised placeholders:
//   - {StationName}
//   - {Track}, {TrackNumber}: empty when the station has no track
//   - {ExitDirection}, {StationIsExitOnLeft}: "links" or "rechts"
//   - {StationNumber}: the 1-based ordinal passed in
//
// Replacement is literal. Unknown braces are left untouched. With a nil
// station, station placeholders resolve to empty text.
func ResolveAnnouncement(template string, station *Station, ordinal int) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}

	var name, track, exit string
	if station != nil {
		name = station.Name
		if station.Track != nil {
			track = strconv.Itoa(*station.Track)
		}
		exit = exitRight
		if station.IsExitOnLeft {
			exit = exitLeft
		}
	}

	return strings.NewReplacer(
		"{StationName}", name,
		"{TrackNumber}", track,
		"{Track}", track,
		"{StationIsExitOnLeft}", exit,
		"{ExitDirection}", exit,
		"{StationNumber}", strconv.Itoa(ordinal),
	).Replace(template)
}
