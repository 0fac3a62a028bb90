package sourceweight

import "testing"

func rawItemAt(iso string) any {
	return map[string]any{"published_at": iso}
}

func TestUpdateFrequencyScore_FewerThanFiveItemsDefaultsToFifty(t *testing.T) {
	items := []any{rawItemAt("2024-01-01T12:00:00Z"), rawItemAt("2024-01-01T11:55:00Z")}
	if got := updateFrequencyScore(items); got != 50 {
		t.Fatalf("updateFrequencyScore with <5 items = %v, want 50", got)
	}
}

func TestUpdateFrequencyScore_FastCadenceScoresHigh(t *testing.T) {
	items := []any{
		rawItemAt("2024-01-01T12:00:00Z"),
		rawItemAt("2024-01-01T11:58:00Z"),
		rawItemAt("2024-01-01T11:56:00Z"),
		rawItemAt("2024-01-01T11:54:00Z"),
		rawItemAt("2024-01-01T11:52:00Z"),
	}
	if got := updateFrequencyScore(items); got != 100 {
		t.Fatalf("updateFrequencyScore for ~2min cadence = %v, want 100", got)
	}
}

func TestUpdateFrequencyScore_SlowCadenceScoresLow(t *testing.T) {
	items := []any{
		rawItemAt("2024-01-01T18:00:00Z"),
		rawItemAt("2024-01-01T12:00:00Z"),
		rawItemAt("2024-01-01T06:00:00Z"),
		rawItemAt("2024-01-01T00:00:00Z"),
		rawItemAt("2023-12-31T18:00:00Z"),
	}
	if got := updateFrequencyScore(items); got != 40 {
		t.Fatalf("updateFrequencyScore for 6h cadence = %v, want 40", got)
	}
}

func TestMetricFloat_SupportsFloatAndIntAndMissing(t *testing.T) {
	metrics := map[string]any{"view_count": 42.0, "like_count": 7}

	if got := metricFloat(metrics, "view_count"); got != 42 {
		t.Fatalf("metricFloat(view_count) = %v, want 42", got)
	}
	if got := metricFloat(metrics, "like_count"); got != 7 {
		t.Fatalf("metricFloat(like_count) = %v, want 7", got)
	}
	if got := metricFloat(metrics, "missing"); got != 0 {
		t.Fatalf("metricFloat(missing) = %v, want 0", got)
	}
	if got := metricFloat(nil, "view_count"); got != 0 {
		t.Fatalf("metricFloat(nil) = %v, want 0", got)
	}
}
