package export

// SampleRecord is the flattened transport shape of one health record.
type SampleRecord struct {
	Value           string `json:"value"`
	Timestamp       string `json:"timestamp"`
	OwnerIdentifier string `json:"email"`
}
