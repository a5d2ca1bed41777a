package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("index queue closed")

// Job asks for one bill's text to be (re)indexed.
type Job struct {
	BillID      string
	UserID      string
	Category    string
	Text        string
	Force       bool // enqueue even if the bill is already in flight
	SubmittedAt time.Time
	TraceID     string
}

// JobFor builds the indexing job of a stored bill. Extracted bills index their raw text;
// manual bills index their summary line.
func JobFor(b *entity.Bill, traceID string) Job {
	doc := vector.DocumentFor(b, b.RawText)
	return Job{
		BillID:      doc.BillID,
		UserID:      doc.UserID,
		Category:    doc.Category,
		Text:        doc.Text,
		SubmittedAt: time.Now().UTC(),
		TraceID:     traceID,
	}
}

func (j Job) document() vector.Document {
	return vector.Document{BillID: j.BillID, UserID: j.UserID, Category: j.Category, Text: j.Text}
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
