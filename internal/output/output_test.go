package output

import (
	"strings"
	"testing"
	"time"

	"github.com/nadim/fieldsync/internal/syncclient"
)

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

// TestFormatTimeAgoMinutes tests times 1-59 minutes ago
func TestFormatTimeAgoMinutes(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{2 * time.Minute, "2m ago"},
		{30 * time.Minute, "30m ago"},
		{59 * time.Minute, "59m ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoHours tests times 1-23 hours ago
func TestFormatTimeAgoHours(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h ago"},
		{12 * time.Hour, "12h ago"},
		{23 * time.Hour, "23h ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDays tests times 1-6 days ago
func TestFormatTimeAgoDays(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{24 * time.Hour, "1d ago"},
		{48 * time.Hour, "2d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times 7+ days ago (returns date)
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
}

// TestFormatState tests all known entity states
func TestFormatState(t *testing.T) {
	states := []string{
		"pending",
		"in_progress",
		"completed",
		"approved",
		"auto_approved",
		"rejected",
		"cancelled",
		"reported",
		"in_review",
		"resolved",
		"closed",
	}

	for _, s := range states {
		result := FormatState(s)
		if !strings.Contains(result, s) {
			t.Errorf("FormatState(%q) = %q, should contain state", s, result)
		}
	}
}

// TestFormatStateUnknown tests unknown state
func TestFormatStateUnknown(t *testing.T) {
	result := FormatState("mystery")
	if result != "[mystery]" {
		t.Errorf("FormatState(mystery) = %q, want '[mystery]'", result)
	}
}

// TestStateBadge tests state badge with symbols
func TestStateBadge(t *testing.T) {
	tests := []struct {
		state    string
		contains string
	}{
		{"pending", "○"},
		{"in_progress", "▶"},
		{"completed", "◎"},
		{"approved", "✓"},
		{"rejected", "✗"},
		{"cancelled", "·"},
	}

	for _, tc := range tests {
		result := StateBadge(tc.state)
		if !strings.Contains(result, tc.contains) {
			t.Errorf("StateBadge(%q) = %q, should contain %q", tc.state, result, tc.contains)
		}
		if !strings.Contains(result, tc.state) {
			t.Errorf("StateBadge(%q) should contain state name", tc.state)
		}
	}
}

// TestStateBadgeUnknown tests badge for unknown state
func TestStateBadgeUnknown(t *testing.T) {
	result := StateBadge("mystery")
	if !strings.Contains(result, "?") {
		t.Error("Unknown state should use ? symbol")
	}
}

// TestFormatEntityShort tests short entity formatting
func TestFormatEntityShort(t *testing.T) {
	e := &syncclient.Entity{
		ServerID: 42,
		ClientID: "dev-7:task:001",
		State:    "completed",
		Version:  3,
		ZoneID:   5,
		Payload:  map[string]interface{}{"title": "Repair street lamp"},
	}

	result := FormatEntityShort(e)

	if !strings.Contains(result, "#42") {
		t.Error("FormatEntityShort should contain server ID")
	}
	if !strings.Contains(result, "Repair street lamp") {
		t.Error("FormatEntityShort should contain title")
	}
	if !strings.Contains(result, "zone 5") {
		t.Error("FormatEntityShort should contain zone")
	}
	if !strings.Contains(result, "v3") {
		t.Error("FormatEntityShort should contain version")
	}
	if !strings.Contains(result, "completed") {
		t.Error("FormatEntityShort should contain state")
	}
}

// TestFormatEntityShortNoTitle falls back to the client ID
func TestFormatEntityShortNoTitle(t *testing.T) {
	e := &syncclient.Entity{
		ServerID: 7,
		ClientID: "dev-2:attendance:014",
		State:    "pending",
		Version:  1,
	}

	result := FormatEntityShort(e)

	if !strings.Contains(result, "dev-2:attendance:014") {
		t.Error("Should fall back to client ID when title is missing")
	}
	if strings.Contains(result, "zone") {
		t.Error("Should not mention zone when zone ID is 0")
	}
}

// TestFormatAppealShort tests short appeal formatting
func TestFormatAppealShort(t *testing.T) {
	a := &syncclient.Appeal{
		ID:         3,
		EntityKind: "task",
		EntityID:   42,
		WorkerID:   9,
		Status:     "pending",
	}

	result := FormatAppealShort(a)

	if !strings.Contains(result, "appeal 3") {
		t.Error("Should contain appeal ID")
	}
	if !strings.Contains(result, "task #42") {
		t.Error("Should contain entity reference")
	}
	if !strings.Contains(result, "worker 9") {
		t.Error("Should contain worker ID")
	}
	if !strings.Contains(result, "pending") {
		t.Error("Should contain status")
	}
}

// TestFormatZoneShort tests short zone formatting
func TestFormatZoneShort(t *testing.T) {
	z := &syncclient.Zone{
		Code:     "Z-CENTRAL",
		Name:     "Central District",
		District: "downtown",
		Version:  2,
		Active:   true,
		Ring: []syncclient.Vertex{
			{Lat: 31.900, Lon: 35.200},
			{Lat: 31.910, Lon: 35.200},
			{Lat: 31.910, Lon: 35.210},
			{Lat: 31.900, Lon: 35.210},
		},
	}

	result := FormatZoneShort(z)

	if !strings.Contains(result, "Z-CENTRAL") {
		t.Error("Should contain zone code")
	}
	if !strings.Contains(result, "Central District") {
		t.Error("Should contain zone name")
	}
	if !strings.Contains(result, "4 vertices") {
		t.Error("Should contain vertex count")
	}
	if !strings.Contains(result, "[active]") {
		t.Error("Should contain active marker")
	}
}

// TestFormatZoneShortInactive tests inactive zone marker
func TestFormatZoneShortInactive(t *testing.T) {
	z := &syncclient.Zone{Code: "Z-OLD", Name: "Old Quarter", Active: false}

	result := FormatZoneShort(z)
	if !strings.Contains(result, "[inactive]") {
		t.Error("Should contain inactive marker")
	}
}

// TestSectionHeader tests section header formatting
func TestSectionHeader(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"appeals", "\nAPPEALS:\n"},
		{"Zone Index", "\nZONE INDEX:\n"},
		{"WORKERS", "\nWORKERS:\n"},
	}

	for _, tc := range tests {
		result := SectionHeader(tc.title)
		if result != tc.expected {
			t.Errorf("SectionHeader(%q) = %q, want %q", tc.title, result, tc.expected)
		}
	}
}

// TestIndentString tests string indentation
func TestIndentString(t *testing.T) {
	input := "line1\nline2\nline3"
	result := IndentString(input, 2)
	expected := "  line1\n  line2\n  line3"

	if result != expected {
		t.Errorf("IndentString() = %q, want %q", result, expected)
	}
}

// TestIndentStringEmpty tests empty string
func TestIndentStringEmpty(t *testing.T) {
	result := IndentString("", 4)
	if result != "" {
		t.Error("Empty string should return empty string")
	}
}

// TestRenderMarkdownWithWidthFallback tests that tiny widths are clamped
func TestRenderMarkdownWithWidthFallback(t *testing.T) {
	out := RenderMarkdownWithWidth("# Title\n\nbody text", 5)
	if out == "" {
		t.Error("Rendered markdown should not be empty")
	}
}
