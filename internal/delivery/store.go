package delivery

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const defaultListLimit = 50

// Store is the SQLite-backed delivery audit log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Store over a database opened with storage.OpenSQLite.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record logs a delivery. When the GitHub delivery ID was already recorded the
// existing record is returned with duplicate set and nothing is written.
func (s *Store) Record(ctx context.Context, req RecordRequest) (rec Record, duplicate bool, err error) {
	if req.Endpoint == "" {
		return Record{}, false, fmt.Errorf("endpoint is empty")
	}
	if req.Event == "" {
		return Record{}, false, fmt.Errorf("event is empty")
	}

	rec = Record{
		ID:         uuid.NewString(),
		DeliveryID: req.DeliveryID,
		Endpoint:   req.Endpoint,
		Event:      req.Event,
		Action:     req.Action,
		HookID:     req.HookID,
		BodySize:   len(req.Body),
		BodyDigest: Digest(req.Body),
		ReceivedAt: s.now().UTC(),
	}
	if rec.DeliveryID == "" {
		rec.DeliveryID = "local-" + uuid.NewString()
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries(id, delivery_id, endpoint, event, action, hook_id, body_size, body_digest, received_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(delivery_id) DO NOTHING;
`, rec.ID, rec.DeliveryID, rec.Endpoint, rec.Event, nullable(rec.Action), nullable(rec.HookID),
		rec.BodySize, rec.BodyDigest, rec.ReceivedAt.Format(timeLayout))
	if err != nil {
		return Record{}, false, fmt.Errorf("record delivery: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("record delivery: %w", err)
	}
	if n == 0 {
		existing, err := s.Get(ctx, rec.DeliveryID)
		if err != nil {
			return Record{}, false, err
		}
		return existing, true, nil
	}
	return rec, false, nil
}

// Get returns the record for a GitHub delivery ID.
func (s *Store) Get(ctx context.Context, deliveryID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, delivery_id, endpoint, event, action, hook_id, body_size, body_digest, received_at
FROM deliveries
WHERE delivery_id = ?;
`, deliveryID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get delivery: %w", err)
	}
	return rec, nil
}

// List returns the most recent deliveries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, delivery_id, endpoint, event, action, hook_id, body_size, body_digest, received_at
FROM deliveries
ORDER BY received_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return out, nil
}

// Prune deletes deliveries received before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE received_at < ?;`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return n, nil
}

// Digest returns the hex BLAKE3-256 digest of body.
func Digest(body []byte) string {
	sum := blake3.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec         Record
		action      sql.NullString
		hookID      sql.NullString
		receivedAtS string
	)
	if err := row.Scan(&rec.ID, &rec.DeliveryID, &rec.Endpoint, &rec.Event, &action, &hookID,
		&rec.BodySize, &rec.BodyDigest, &receivedAtS); err != nil {
		return Record{}, err
	}
	rec.Action = action.String
	rec.HookID = hookID.String
	if t, err := time.Parse(timeLayout, receivedAtS); err == nil {
		rec.ReceivedAt = t
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
