package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs the query methods it actually calls, not the full
// domain store interfaces. The Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// EventArchiveStore provides read access to the event journal for archival.
type EventArchiveStore interface {
	// ListBefore returns up to limit journal records created strictly before
	// the cutoff, in sequence order. limit <= 0 means no cap.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.EventRecord, error)
}

// BalanceSnapshotStore provides read access to current balances for
// snapshotting.
type BalanceSnapshotStore interface {
	LoadBalances(ctx context.Context) ([]domain.PositionBalance, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the journal and balance
// stores, serializing records to JSONL, and uploading the result to S3.
//
// Deletion of archived journal rows from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	events    EventArchiveStore
	balances  BalanceSnapshotStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates a new ArchiveImpl. batchSize caps how many journal
// records one ArchiveEvents call moves; <= 0 means unlimited.
func NewArchiver(
	writer domain.BlobWriter,
	events EventArchiveStore,
	balances BalanceSnapshotStore,
	audit domain.AuditStore,
	batchSize int,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		events:    events,
		balances:  balances,
		audit:     audit,
		batchSize: batchSize,
	}
}

// ArchiveEvents queries journal records before the cutoff, serializes them to
// JSONL, and uploads the file under archive/events/. The object name carries
// the cutoff month and the archived sequence range, so repeated runs within a
// month never clobber each other. The archival is recorded in the audit log;
// the count of archived records and the highest archived sequence number are
// returned so the caller can prune exactly what was uploaded.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, uint64, error) {
	records, err := a.events.ListBefore(ctx, before, a.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	firstSeq := records[0].Seq
	lastSeq := records[len(records)-1].Seq
	path := fmt.Sprintf("archive/events/%s-%012d-%012d.jsonl",
		before.Format("2006-01"), firstSeq, lastSeq)

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":      path,
		"count":     count,
		"first_seq": firstSeq,
		"last_seq":  lastSeq,
		"before":    before.Format(time.RFC3339),
	}); err != nil {
		return count, lastSeq, fmt.Errorf("s3blob: archive events audit log: %w", err)
	}

	return count, lastSeq, nil
}

// snapshotRow is the JSONL shape of one balance cell in a snapshot.
type snapshotRow struct {
	PositionID string `json:"position_id"`
	Account    string `json:"account"`
	Balance    string `json:"balance"`
	UpdatedAt  string `json:"updated_at"`
}

// SnapshotBalances uploads the full set of non-zero balances as a JSONL
// object under snapshots/balances/ and returns the object path. The snapshot
// is recorded in the audit log.
func (a *ArchiveImpl) SnapshotBalances(ctx context.Context) (string, error) {
	balances, err := a.balances.LoadBalances(ctx)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot balances query: %w", err)
	}

	rows := make([]snapshotRow, 0, len(balances))
	for _, b := range balances {
		balance := "0"
		if b.Balance != nil {
			balance = b.Balance.Dec()
		}
		rows = append(rows, snapshotRow{
			PositionID: b.PositionID.Hex(),
			Account:    b.Account.Hex(),
			Balance:    balance,
			UpdatedAt:  b.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return "", fmt.Errorf("s3blob: snapshot balances marshal: %w", err)
	}

	path := fmt.Sprintf("snapshots/balances/%s.jsonl",
		time.Now().UTC().Format("20060102T150405Z"))

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: snapshot balances upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.balance_snapshot", map[string]any{
		"path":  path,
		"count": len(rows),
	}); err != nil {
		return path, fmt.Errorf("s3blob: snapshot balances audit log: %w", err)
	}

	return path, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
