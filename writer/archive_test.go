package writer

import (
	"strings"
	"testing"
	"time"

	appconfig "tenderflow/config"
	"tenderflow/models"
)

func archiveNotice(id string, lots int) models.HighValueNotice {
	n := models.HighValueNotice{
		PublicationID:   id,
		PublicationDate: "20250115",
		BuyerName:       "City of Lyon",
		BuyerCountry:    "FRA",
		Title:           "Metro extension",
		TotalValue:      float64(lots) * 10_000_000,
	}
	for i := 0; i < lots; i++ {
		v := 10_000_000.0
		n.Lots = append(n.Lots, models.ConvertedLot{
			LotRecord: models.LotRecord{
				LotID:          "LOT-000" + string(rune('1'+i)),
				TenderValue:    &v,
				TenderCurrency: "EUR",
				WinnerName:     "Winner SA",
				WinnerCountry:  "FRA",
			},
			EURValue: v,
		})
	}
	return n
}

func TestFlattenNotices(t *testing.T) {
	rows := flattenNotices([]models.HighValueNotice{
		archiveNotice("1-2025", 2),
		archiveNotice("2-2025", 1),
	}, 1700000000000)

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].PublicationID != "1-2025" || rows[2].PublicationID != "2-2025" {
		t.Errorf("unexpected row ordering: %v", rows)
	}
	if rows[0].LotID != "LOT-0001" || rows[1].LotID != "LOT-0002" {
		t.Errorf("expected per-lot rows, got %q / %q", rows[0].LotID, rows[1].LotID)
	}
	if rows[0].NoticeTotal != 20_000_000 {
		t.Errorf("expected notice total on every row, got %v", rows[0].NoticeTotal)
	}
	if rows[0].ArchivedAt != 1700000000000 {
		t.Errorf("expected archive timestamp, got %v", rows[0].ArchivedAt)
	}
}

func TestFlattenNoticesNilValue(t *testing.T) {
	n := archiveNotice("3-2025", 1)
	n.Lots[0].TenderValue = nil

	rows := flattenNotices([]models.HighValueNotice{n}, 0)
	if rows[0].TenderValue != 0 {
		t.Errorf("expected zero for missing tender value, got %v", rows[0].TenderValue)
	}
}

func TestObjectKeyPartitioning(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Prefix = "archive"
	w := &ArchiveWriter{config: cfg}

	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	key := w.objectKey(ts)

	if !strings.HasPrefix(key, "archive/date=2025-01-15/") {
		t.Errorf("expected date partition prefix, got %q", key)
	}
	if !strings.HasSuffix(key, ".parquet") {
		t.Errorf("expected parquet suffix, got %q", key)
	}
	if !strings.Contains(key, "20250115103000_") {
		t.Errorf("expected timestamp in filename, got %q", key)
	}
}

func TestObjectKeyDefaultPrefix(t *testing.T) {
	w := &ArchiveWriter{config: &appconfig.Config{}}
	key := w.objectKey(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(key, "notices/") {
		t.Errorf("expected default prefix, got %q", key)
	}
}

func TestCreateParquetFile(t *testing.T) {
	w := &ArchiveWriter{config: &appconfig.Config{}}
	rows := flattenNotices([]models.HighValueNotice{archiveNotice("4-2025", 2)}, 1700000000000)

	data, err := w.createParquetFile(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}
	// PAR1 magic at both ends of a well-formed file.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Errorf("expected parquet magic bytes, got %q ... %q", data[:4], data[len(data)-4:])
	}
}
