package processor

import (
	"fmt"

	"tenderflow/models"
)

// MatchLots reconstructs the per-lot records of a notice from its parallel
// field arrays. TED represents the one-to-many notice→lot relationship as
// independently sized same-notice arrays with no cross-reference between
// them; index position is the only available join key. The alignment policy
// is deliberately best-effort:
//
//   - a field with exactly one entry is broadcast to every lot,
//   - a field whose length matches the lot count aligns one-to-one,
//   - any other length means the upstream arrays are partially populated;
//     positions past the end fall back to the field's default.
//
// The lot count is the longest of the identifier, estimated-value and
// tender-value sequences, floored at one so a purely scalar notice still
// yields a single record.
func MatchLots(n models.RawNotice) []models.LotRecord {
	lotIDs := ToSequence(n.Field(models.FieldLotIdentifier))
	estValues := ToSequence(n.Field(models.FieldEstimatedValue))
	estCurs := ToSequence(n.Field(models.FieldEstimatedCur))
	tenderValues := ToSequence(n.Field(models.FieldTenderValue))
	tenderCurs := ToSequence(n.Field(models.FieldTenderCur))

	winnerNames := winnerSequence(n, models.FieldWinnerName, models.FieldTendererName)
	winnerCountries := winnerSequence(n, models.FieldWinnerCountry, models.FieldTendererCountry)
	winnerCities := winnerSequence(n, models.FieldWinnerCity, models.FieldTendererCity)

	lotCount := maxInt(1, len(lotIDs), len(estValues), len(tenderValues))

	lots := make([]models.LotRecord, 0, lotCount)
	for i := 0; i < lotCount; i++ {
		lots = append(lots, models.LotRecord{
			LotID:             lotID(lotIDs, i),
			EstimatedValue:    numberAt(estValues, i),
			EstimatedCurrency: alignField(estCurs, i, "EUR"),
			TenderValue:       numberAt(tenderValues, i),
			TenderCurrency:    alignField(tenderCurs, i, "EUR"),
			WinnerName:        alignField(winnerNames, i, models.NA),
			WinnerCountry:     alignField(winnerCountries, i, models.NA),
			WinnerCity:        alignField(winnerCities, i, models.NA),
		})
	}
	return lots
}

// winnerSequence extracts a winner attribute, falling back to the tenderer
// organisation field when the winner field is absent. eForms notices carry
// these as language-keyed maps, so each is resolved before sequencing.
func winnerSequence(n models.RawNotice, primary, fallback string) []any {
	seq := ToSequence(ResolveLocalized(n.Field(primary), nil))
	if len(seq) == 0 {
		seq = ToSequence(ResolveLocalized(n.Field(fallback), nil))
	}
	return seq
}

// alignField applies the broadcast/alignment rule for a text field at lot
// position i: a single entry applies to all lots, otherwise positional with
// the default past the end of the sequence.
func alignField(seq []any, i int, def string) string {
	switch {
	case len(seq) == 1:
		return asString(seq[0], def)
	case i < len(seq):
		return asString(seq[i], def)
	default:
		return def
	}
}

// numberAt returns the i-th numeric entry or nil. Values never broadcast: a
// single amount on a multi-lot notice belongs to one lot, not all of them.
func numberAt(seq []any, i int) *float64 {
	if i >= len(seq) {
		return nil
	}
	f, ok := asFloat(seq[i])
	if !ok {
		return nil
	}
	return &f
}

func lotID(ids []any, i int) string {
	if i < len(ids) {
		if id := asString(ids[i], ""); id != "" {
			return id
		}
	}
	return fmt.Sprintf("LOT-%d", i+1)
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
