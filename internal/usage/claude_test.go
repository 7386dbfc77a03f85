package usage

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/j-veylop/codequota/internal/models"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-10, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Time
		ok   bool
	}{
		{"Fractional", "2025-06-15T12:30:00.000Z", time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC), true},
		{"NoFraction", "2025-06-15T12:30:00Z", time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC), true},
		{"Offset", "2025-06-15T14:30:00+02:00", time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC), true},
		{"Epoch", float64(1750000000), time.Unix(1750000000, 0), true},
		{"SmallEpoch", 100.0, time.Time{}, false},
		{"FloorEpoch", float64(minPlausibleEpoch), time.Time{}, false},
		{"InvalidString", "not-a-date", time.Time{}, false},
		{"Bool", true, time.Time{}, false},
		{"Nil", nil, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := timestamp(tt.in)
			if ok != tt.ok {
				t.Fatalf("timestamp(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("timestamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBucketFromObject(t *testing.T) {
	tests := []struct {
		name      string
		obj       map[string]any
		want      float64
		ok        bool
		wantReset bool
	}{
		{"Utilization", map[string]any{"utilization": 0.75, "reset_at": "2025-06-15T12:30:00Z"}, 0.75, true, true},
		{"Usage", map[string]any{"usage": 45.5}, 45.5, true, false},
		{"PercentHundredths", map[string]any{"percent": 7500.0}, 75, true, false},
		{"Value", map[string]any{"value": 33.0}, 33, true, false},
		{"UtilizationWinsOverValue", map[string]any{"value": 10.0, "utilization": 20.0}, 20, true, false},
		{"Clamped", map[string]any{"utilization": 250.0}, 100, true, false},
		{"ResetAtCamel", map[string]any{"utilization": 0.5, "resetAt": "2025-06-15T12:30:00Z"}, 0.5, true, true},
		{"ResetsAt", map[string]any{"utilization": 0.5, "resets_at": "2025-06-15T12:30:00Z"}, 0.5, true, true},
		{"ExpiresAt", map[string]any{"utilization": 0.5, "expires_at": "2025-06-15T12:30:00Z"}, 0.5, true, true},
		{"ImplausibleReset", map[string]any{"utilization": 0.5, "reset_at": 100.0}, 0.5, true, false},
		{"NoValue", map[string]any{"name": "test"}, 0, false, false},
		{"StringValue", map[string]any{"utilization": "0.5"}, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ok := bucketFromObject(tt.obj)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if b.Percent != tt.want {
				t.Errorf("Percent = %v, want %v", b.Percent, tt.want)
			}
			if (b.ResetAt != nil) != tt.wantReset {
				t.Errorf("ResetAt = %v, wantReset %v", b.ResetAt, tt.wantReset)
			}
		})
	}
}

func TestParseClaude_Nested(t *testing.T) {
	body := `{
		"five_hour": {"utilization": 0.25, "reset_at": "2025-06-15T12:30:00Z"},
		"seven_day": {"utilization": 40, "resets_at": "2025-06-20T00:00:00.123Z"},
		"seven_day_sonnet": {"utilization": 12.5}
	}`

	got, err := ParseClaude([]byte(body))
	if err != nil {
		t.Fatalf("ParseClaude() error = %v", err)
	}
	if got.FiveHour.Percent != 0.25 || got.FiveHour.ResetAt == nil {
		t.Errorf("FiveHour = %+v", got.FiveHour)
	}
	if got.WeeklyAll.Percent != 40 || got.WeeklyAll.ResetAt == nil {
		t.Errorf("WeeklyAll = %+v", got.WeeklyAll)
	}
	if got.WeeklyModel.Percent != 12.5 || got.WeeklyModel.ResetAt != nil {
		t.Errorf("WeeklyModel = %+v", got.WeeklyModel)
	}
}

func TestParseClaude_FlatMatchesNested(t *testing.T) {
	flat, err := ParseClaude([]byte(`{"five_hour_utilization": 0.42, "five_hour_reset_at": "2025-06-15T12:30:00Z"}`))
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	nested, err := ParseClaude([]byte(`{"five_hour": {"utilization": 0.42, "reset_at": "2025-06-15T12:30:00Z"}}`))
	if err != nil {
		t.Fatalf("nested: %v", err)
	}

	if flat.FiveHour.Percent != nested.FiveHour.Percent {
		t.Errorf("flat percent %v != nested %v", flat.FiveHour.Percent, nested.FiveHour.Percent)
	}
	if flat.FiveHour.ResetAt == nil || nested.FiveHour.ResetAt == nil || !flat.FiveHour.ResetAt.Equal(*nested.FiveHour.ResetAt) {
		t.Errorf("reset mismatch: flat %v nested %v", flat.FiveHour.ResetAt, nested.FiveHour.ResetAt)
	}
}

func TestParseClaude_AliasPrecedence(t *testing.T) {
	body := `{
		"shortTerm": {"utilization": 1},
		"fiveHour": {"utilization": 2},
		"weekly": {"utilization": 3},
		"daily": {"utilization": 4},
		"sonnet": {"utilization": 5}
	}`

	got, err := ParseClaude([]byte(body))
	if err != nil {
		t.Fatalf("ParseClaude() error = %v", err)
	}
	if got.FiveHour.Percent != 2 {
		t.Errorf("FiveHour = %v, want fiveHour alias (2)", got.FiveHour.Percent)
	}
	if got.WeeklyAll.Percent != 4 {
		t.Errorf("WeeklyAll = %v, want daily alias (4)", got.WeeklyAll.Percent)
	}
	if got.WeeklyModel.Percent != 5 {
		t.Errorf("WeeklyModel = %v, want 5", got.WeeklyModel.Percent)
	}
}

func TestParseClaude_MissingBucketsDefaultToZero(t *testing.T) {
	got, err := ParseClaude([]byte(`{"five_hour": {"utilization": 55}}`))
	if err != nil {
		t.Fatalf("ParseClaude() error = %v", err)
	}
	if got.FiveHour.Percent != 55 {
		t.Errorf("FiveHour = %v", got.FiveHour.Percent)
	}
	if got.WeeklyAll != (models.UsageBucket{}) || got.WeeklyModel != (models.UsageBucket{}) {
		t.Errorf("unresolved buckets should be zero: %+v %+v", got.WeeklyAll, got.WeeklyModel)
	}
}

func TestParseClaude_AlphabeticalFallback(t *testing.T) {
	body := `{
		"zeta": {"utilization": 30},
		"alpha": {"usage": 10},
		"mid": {"value": 20},
		"label": "ignored",
		"broken": {"name": "no value"}
	}`

	got, err := ParseClaude([]byte(body))
	if err != nil {
		t.Fatalf("ParseClaude() error = %v", err)
	}
	if got.FiveHour.Percent != 10 || got.WeeklyAll.Percent != 20 || got.WeeklyModel.Percent != 30 {
		t.Errorf("fallback assignment = %v/%v/%v, want 10/20/30",
			got.FiveHour.Percent, got.WeeklyAll.Percent, got.WeeklyModel.Percent)
	}
}

func TestParseClaude_FallbackFewerThanThree(t *testing.T) {
	got, err := ParseClaude([]byte(`{"only": {"utilization": 80}}`))
	if err != nil {
		t.Fatalf("ParseClaude() error = %v", err)
	}
	if got.FiveHour.Percent != 80 || got.WeeklyAll.Percent != 0 || got.WeeklyModel.Percent != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestParseClaude_Unrecognized(t *testing.T) {
	_, err := ParseClaude([]byte(`{"foo": 1, "bar": "x", "baz": {"name": "y"}}`))

	var perr *models.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if perr.Kind != models.UnrecognizedFormat {
		t.Errorf("Kind = %v, want UnrecognizedFormat", perr.Kind)
	}
	if want := []string{"bar", "baz", "foo"}; !slices.Equal(perr.Keys, want) {
		t.Errorf("Keys = %v, want %v", perr.Keys, want)
	}
}

func TestParseClaude_InvalidJSON(t *testing.T) {
	for _, body := range []string{"not json", "[1,2,3]", "null", ""} {
		_, err := ParseClaude([]byte(body))

		var perr *models.ParseError
		if !errors.As(err, &perr) || perr.Kind != models.InvalidJSON {
			t.Errorf("ParseClaude(%q) error = %v, want InvalidJSON", body, err)
		}
	}
}
