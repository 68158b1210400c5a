package automation

import "testing"

func TestResolveAnnouncement(t *testing.T) {
	track := 4
	left := &Station{Name: "Bergdorf", Track: &track, IsExitOnLeft: true}
	right := &Station{Name: "Talstadt"}

	tests := []struct {
		name     string
		template string
		station  *Station
		ordinal  int
		want     string
	}{
		{"empty template", "", left, 1, ""},
		{"no placeholders", "Bitte einsteigen", left, 1, "Bitte einsteigen"},
		{"exit left", "Ausgang {ExitDirection}", left, 1, "Ausgang links"},
		{"exit right", "Ausgang {ExitDirection}", right, 1, "Ausgang rechts"},
		{"legacy exit placeholder", "{StationIsExitOnLeft}", left, 1, "links"},
		{"track", "Gleis {Track} / {TrackNumber}", left, 1, "Gleis 4 / 4"},
		{"unset track", "Gleis {Track}", right, 1, "Gleis "},
		{"station number", "Halt {StationNumber}: {StationName}", right, 3, "Halt 3: Talstadt"},
		{"nil station", "{StationName}|{Track}|{ExitDirection}|{StationNumber}", nil, 2, "|||2"},
		{"unknown placeholder kept", "{Unknown} {StationName}", left, 1, "{Unknown} Bergdorf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveAnnouncement(tt.template, tt.station, tt.ordinal); got != tt.want {
				t.Errorf("ResolveAnnouncement(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}
