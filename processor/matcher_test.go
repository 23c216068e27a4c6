package processor

import (
	"testing"

	"tenderflow/models"
)

func TestMatchLotsBroadcastSingleTextField(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001", "LOT-0002", "LOT-0003"},
		models.FieldTenderValue:   []any{1000.0, 2000.0, 3000.0},
		models.FieldTenderCur:     []any{"EUR"},
		models.FieldWinnerName:    []any{"Sole Winner AB"},
	}

	lots := MatchLots(n)
	if len(lots) != 3 {
		t.Fatalf("expected 3 lots, got %d", len(lots))
	}
	for i, lot := range lots {
		if lot.WinnerName != "Sole Winner AB" {
			t.Errorf("lot %d: expected broadcast winner, got %q", i, lot.WinnerName)
		}
		if lot.TenderCurrency != "EUR" {
			t.Errorf("lot %d: expected broadcast currency, got %q", i, lot.TenderCurrency)
		}
	}
}

func TestMatchLotsPositionalAlignment(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001", "LOT-0002", "LOT-0003"},
		models.FieldTenderValue:   []any{1000.0, 2000.0, 3000.0},
		models.FieldWinnerName:    []any{"Alpha", "Beta", "Gamma"},
	}

	lots := MatchLots(n)
	want := []string{"Alpha", "Beta", "Gamma"}
	for i, lot := range lots {
		if lot.WinnerName != want[i] {
			t.Errorf("lot %d: expected %q, got %q", i, want[i], lot.WinnerName)
		}
	}
}

func TestMatchLotsShortFieldFallsBackToSentinel(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001", "LOT-0002", "LOT-0003"},
		models.FieldWinnerName:    []any{"Alpha", "Beta"},
	}

	lots := MatchLots(n)
	if len(lots) != 3 {
		t.Fatalf("expected 3 lots, got %d", len(lots))
	}
	if lots[0].WinnerName != "Alpha" || lots[1].WinnerName != "Beta" {
		t.Errorf("expected positional winners, got %q / %q", lots[0].WinnerName, lots[1].WinnerName)
	}
	if lots[2].WinnerName != models.NA {
		t.Errorf("expected sentinel past end of two-element field, got %q", lots[2].WinnerName)
	}
}

func TestMatchLotsNumericValuesNeverBroadcast(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001", "LOT-0002", "LOT-0003"},
		models.FieldTenderValue:   []any{9_000_000.0},
	}

	lots := MatchLots(n)
	if lots[0].TenderValue == nil || *lots[0].TenderValue != 9_000_000 {
		t.Errorf("expected first lot to carry the value, got %v", lots[0].TenderValue)
	}
	for i := 1; i < 3; i++ {
		if lots[i].TenderValue != nil {
			t.Errorf("lot %d: single amount must not broadcast, got %v", i, *lots[i].TenderValue)
		}
	}
}

func TestMatchLotsScalarNoticeYieldsOneLot(t *testing.T) {
	n := models.RawNotice{
		models.FieldTenderValue: 5_000_000.0,
		models.FieldWinnerName:  "Single Co",
	}

	lots := MatchLots(n)
	if len(lots) != 1 {
		t.Fatalf("expected 1 lot for scalar notice, got %d", len(lots))
	}
	if lots[0].TenderValue == nil || *lots[0].TenderValue != 5_000_000 {
		t.Errorf("expected scalar value kept, got %v", lots[0].TenderValue)
	}
	if lots[0].WinnerName != "Single Co" {
		t.Errorf("expected scalar winner kept, got %q", lots[0].WinnerName)
	}
}

func TestMatchLotsEmptyNoticeYieldsOneEmptyLot(t *testing.T) {
	lots := MatchLots(models.RawNotice{})
	if len(lots) != 1 {
		t.Fatalf("expected lot count floor of 1, got %d", len(lots))
	}
	lot := lots[0]
	if lot.LotID != "LOT-1" {
		t.Errorf("expected synthesized id LOT-1, got %q", lot.LotID)
	}
	if lot.TenderValue != nil || lot.EstimatedValue != nil {
		t.Error("expected nil values on empty notice")
	}
	if lot.WinnerName != models.NA {
		t.Errorf("expected sentinel winner, got %q", lot.WinnerName)
	}
}

func TestMatchLotsSynthesizesMissingIdentifiers(t *testing.T) {
	n := models.RawNotice{
		models.FieldTenderValue: []any{1000.0, 2000.0},
	}

	lots := MatchLots(n)
	if lots[0].LotID != "LOT-1" || lots[1].LotID != "LOT-2" {
		t.Errorf("expected synthesized ids, got %q / %q", lots[0].LotID, lots[1].LotID)
	}
}

func TestMatchLotsTendererFallback(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001"},
		models.FieldTendererName:  map[string]any{"eng": []any{"Fallback Corp"}},
	}

	lots := MatchLots(n)
	if lots[0].WinnerName != "Fallback Corp" {
		t.Errorf("expected tenderer fallback, got %q", lots[0].WinnerName)
	}
}

func TestMatchLotsLocalizedWinnerNames(t *testing.T) {
	n := models.RawNotice{
		models.FieldLotIdentifier: []any{"LOT-0001", "LOT-0002"},
		models.FieldWinnerName:    map[string]any{"eng": []any{"First Ltd", "Second Ltd"}},
	}

	lots := MatchLots(n)
	if lots[0].WinnerName != "First Ltd" || lots[1].WinnerName != "Second Ltd" {
		t.Errorf("expected per-lot names from localized map, got %q / %q", lots[0].WinnerName, lots[1].WinnerName)
	}
}
