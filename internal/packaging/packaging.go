// Package packaging serializes a request's approved correspondence
// into a portable zip archive for escalation or export. The same
// request state always produces byte-identical output.
package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openfoi/foiportal/internal/models"
	"github.com/openfoi/foiportal/internal/storage"
)

// Fixed entry timestamp keeps archives reproducible; zip headers
// would otherwise embed the build time.
var entryTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const dateFormat = "2006-01-02"

// Build produces the export archive. Messages appear in chronological
// order; hidden-content messages are skipped entirely, unapproved
// attachments are skipped individually. Attachment bytes are fetched
// from blobs by storage key.
func Build(ctx context.Context, req *models.Request, msgs []*models.Message, atts map[uuid.UUID][]*models.Attachment, blobs storage.BlobStore) ([]byte, error) {
	ordered := make([]*models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	// Sequence numbers restart per calendar date.
	seqByDate := make(map[string]int)
	for _, msg := range ordered {
		if msg.ContentHidden {
			continue
		}
		date := msg.Timestamp.UTC().Format(dateFormat)
		seqByDate[date]++
		seq := seqByDate[date]

		role := "requester"
		if msg.IsResponse {
			role = "publicbody"
		}
		name := fmt.Sprintf("%s_%d_%s.txt", date, seq, role)
		if err := writeEntry(w, name, []byte(msg.Plaintext)); err != nil {
			return nil, err
		}

		ordinal := 0
		for _, att := range atts[msg.ID] {
			if !att.Approved {
				continue
			}
			ordinal++
			data, err := blobs.Get(ctx, att.StorageKey)
			if err != nil {
				return nil, fmt.Errorf("fetch attachment %s: %w", att.Name, err)
			}
			entry := fmt.Sprintf("%s_%d-file_%d%s", date, seq, ordinal, path.Ext(att.Name))
			if err := writeEntry(w, entry, data); err != nil {
				return nil, err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ArchiveName returns the canonical file name for a request's export.
func ArchiveName(req *models.Request) string {
	return fmt.Sprintf("request_%d.zip", req.Number)
}

func writeEntry(w *zip.Writer, name string, data []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	f, err := w.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}
