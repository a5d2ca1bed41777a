package constants

// IngestStatus is the outcome reported for an ingested bill.
type IngestStatus string

// Stable values returned to clients.
const (
	IngestStatusOK                   IngestStatus = "ok"
	IngestStatusRequiresConfirmation IngestStatus = "requires_confirmation"
	IngestStatusExtractionFailed     IngestStatus = "extraction_failed"
)

// IndexStatus tracks whether a stored bill has reached the vector index.
type IndexStatus string

const (
	IndexStatusPending IndexStatus = "PENDING"
	IndexStatusIndexed IndexStatus = "INDEXED"
	IndexStatusFailed  IndexStatus = "FAILED"
)
