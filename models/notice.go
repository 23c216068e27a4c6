package models

// NA is the sentinel used wherever a text field cannot be resolved from the
// upstream record. It deliberately matches what the TED UI shows for missing
// data so alerts stay readable.
const NA = "N/A"

// TED Search API field names consumed by the pipeline. The upstream API
// returns each of these as absent, a scalar, an array, or a language-keyed
// map, independently per notice.
const (
	FieldPublicationNumber = "publication-number"
	FieldNoticeIdentifier  = "notice-identifier"
	FieldND                = "ND"
	FieldPD                = "PD"
	FieldFormType          = "form-type"
	FieldNoticeTitle       = "notice-title"
	FieldBuyerName         = "buyer-name"
	FieldBuyerCountry      = "buyer-country"
	FieldBuyerCity         = "buyer-city"
	FieldLotIdentifier     = "identifier-lot"
	FieldEstimatedValue    = "estimated-value-lot"
	FieldEstimatedCur      = "estimated-value-cur-lot"
	FieldTenderValue       = "tender-value"
	FieldTenderCur         = "tender-value-cur"
	FieldWinnerName        = "winner-name"
	FieldWinnerCountry     = "winner-country"
	FieldWinnerCity        = "winner-city"
	FieldTendererName      = "organisation-name-tenderer"
	FieldTendererCountry   = "organisation-country-tenderer"
	FieldTendererCity      = "organisation-city-tenderer"
)

// RawNotice is one notice exactly as decoded from the search response.
// Values are never mutated; every shape question is answered downstream by
// the normalizer.
type RawNotice map[string]any

// Field returns the raw value for a field name, nil when absent.
func (n RawNotice) Field(name string) any {
	return n[name]
}

// LotRecord is one awardable unit reconstructed from a notice's parallel
// arrays. Value pointers stay nil when the source carries no number for the
// position; zero is a real amount, absence is not.
type LotRecord struct {
	LotID             string
	EstimatedValue    *float64
	EstimatedCurrency string
	TenderValue       *float64
	TenderCurrency    string
	WinnerName        string
	WinnerCountry     string
	WinnerCity        string
}

// ConvertedLot is a LotRecord whose tender value has been converted to EUR.
// Only lots with a present tender value are ever converted.
type ConvertedLot struct {
	LotRecord
	EURValue float64
}

// HighValueNotice is the aggregate emitted for a notice whose summed award
// value meets the alert threshold.
type HighValueNotice struct {
	PublicationID   string
	PublicationDate string
	BuyerName       string
	BuyerCountry    string
	BuyerCity       string
	Title           string
	NoticeURL       string
	Lots            []ConvertedLot
	TotalValue      float64
}

// LotCount reports the number of converted lots carried by the alert.
func (h *HighValueNotice) LotCount() int {
	return len(h.Lots)
}
