package models

// ExtractedIntelligence holds the financial identifiers and keywords found in text
type ExtractedIntelligence struct {
	BankAccounts       []string `json:"bankAccounts"`
	UPIIDs             []string `json:"upiIds"`
	URLs               []string `json:"phishingLinks"`
	PhoneNumbers       []string `json:"phoneNumbers"`
	SuspiciousKeywords []string `json:"suspiciousKeywords"`
}

// HasPaymentIdentifiers reports whether a bank account or UPI id was found
func (e ExtractedIntelligence) HasPaymentIdentifiers() bool {
	return len(e.BankAccounts) > 0 || len(e.UPIIDs) > 0
}

// IsEmpty reports whether nothing at all was extracted
func (e ExtractedIntelligence) IsEmpty() bool {
	return len(e.BankAccounts) == 0 &&
		len(e.UPIIDs) == 0 &&
		len(e.URLs) == 0 &&
		len(e.PhoneNumbers) == 0 &&
		len(e.SuspiciousKeywords) == 0
}

// Classification is the scam verdict for one message
type Classification struct {
	IsScam         bool     `json:"is_scam"`
	Confidence     float64  `json:"confidence"`
	KeywordMatches int      `json:"keyword_matches"`
	Keywords       []string `json:"keywords,omitempty"`
}
