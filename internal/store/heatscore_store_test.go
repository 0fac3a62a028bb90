package store

import (
	"testing"
	"time"

	apperrors "heatsight/pkg/errors"
)

func TestStripOffset_PreservesUTCInstantAcrossOffsets(t *testing.T) {
	zulu, err := time.Parse(time.RFC3339, "2024-01-01T12:30:00Z")
	if err != nil {
		t.Fatalf("parse zulu: %v", err)
	}
	plusEight, err := time.Parse(time.RFC3339, "2024-01-01T20:30:00+08:00")
	if err != nil {
		t.Fatalf("parse +08:00: %v", err)
	}
	naive, err := time.ParseInLocation("2006-01-02T15:04:05", "2024-01-01T12:30:00", time.UTC)
	if err != nil {
		t.Fatalf("parse naive: %v", err)
	}

	a := stripOffset(zulu)
	b := stripOffset(plusEight)
	c := stripOffset(naive)

	if !a.Equal(b) || !a.Equal(c) {
		t.Fatalf("stripOffset should normalize equivalent instants: a=%v b=%v c=%v", a, b, c)
	}
	if a.Location() != time.UTC {
		t.Fatalf("stripOffset result location = %v, want UTC", a.Location())
	}
}

func TestDecodeRow_EmptyJSONColumnsDecodeToZeroValues(t *testing.T) {
	row := &heatScoreRow{ID: "x", NewsID: "n1"}

	hs, err := decodeRow(row)
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	if hs.ID != "x" || hs.NewsID != "n1" {
		t.Fatalf("decodeRow lost scalar fields: %+v", hs)
	}
	if hs.MetaData.Category != "" {
		t.Fatalf("expected zero-value MetaData when column is empty, got %+v", hs.MetaData)
	}
	if len(hs.Keywords) != 0 {
		t.Fatalf("expected zero keywords when column is empty, got %+v", hs.Keywords)
	}
}

func TestDecodeRow_DecodesJSONColumns(t *testing.T) {
	row := &heatScoreRow{
		ID:       "x",
		NewsID:   "n1",
		MetaData: []byte(`{"category":"technology","source_weight":90}`),
		Keywords: []byte(`[{"word":"ai","weight":0.5,"type":"keyword"}]`),
	}

	hs, err := decodeRow(row)
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	if hs.MetaData.Category != "technology" {
		t.Fatalf("MetaData.Category = %q, want technology", hs.MetaData.Category)
	}
	if len(hs.Keywords) != 1 || hs.Keywords[0].Word != "ai" {
		t.Fatalf("Keywords decode mismatch: %+v", hs.Keywords)
	}
}

func TestDecodeRow_MalformedJSONReturnsStorePermanentError(t *testing.T) {
	row := &heatScoreRow{ID: "x", MetaData: []byte(`not-json`)}

	_, err := decodeRow(row)
	if err == nil {
		t.Fatalf("expected decode error for malformed meta_data JSON")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Kind != apperrors.KindStorePermanent {
		t.Fatalf("decode error = %v, want a StorePermanent AppError", err)
	}
}
