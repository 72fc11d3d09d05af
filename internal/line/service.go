package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/db"
	"github.com/SofieTorch/cbba-mobility/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("line not found")

// ErrInvalidMerge rejects merge requests that would corrupt the catalogue:
// self-merges, re-merges, merges without a target or into a merged target.
var ErrInvalidMerge = errors.New("invalid merge")

// MergedError rejects assigning a recording to a line that was merged away;
// it carries the surviving line for the caller to use instead.
type MergedError struct {
	LineID     string
	MergedInto string
}

func (e *MergedError) Error() string {
	return fmt.Sprintf("line %s was merged; use line %s instead", e.LineID, e.MergedInto)
}

const approvedCacheKey = "lines:approved"

type Service struct {
	db       db.Querier
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewService(db db.Querier, redisClient *redis.Client, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Service{db: db, redis: redisClient, cacheTTL: cacheTTL}
}

func (s *Service) Create(ctx context.Context, input LineCreate) (Line, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Line{}, errors.New("name required")
	}
	ln := Line{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Status:      StatusPending,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO lines (id, name, description, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`, ln.ID, ln.Name, ln.Description, ln.Status)
	if err := row.Scan(&ln.CreatedAt, &ln.UpdatedAt); err != nil {
		return Line{}, err
	}
	s.invalidateCache(ctx)
	return ln, nil
}

// List returns lines filtered by status (approved by default). The approved
// listing is what every client shows in its line picker, so that one goes
// through the Redis cache.
func (s *Service) List(ctx context.Context, status Status, includeAll bool, skip, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = 100
	}

	cacheable := !includeAll && status == StatusApproved && skip == 0 && limit == 100
	if cacheable {
		if lines, ok := s.cachedApproved(ctx); ok {
			return lines, nil
		}
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(description,''), status, merged_into_id, ST_AsText(path), created_at, updated_at
		FROM lines
		WHERE ($1 OR status=$2)
		ORDER BY name
		OFFSET $3 LIMIT $4
	`, includeAll, status, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		ln, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}

	if cacheable {
		s.storeApproved(ctx, lines)
	}
	return lines, nil
}

func (s *Service) Get(ctx context.Context, id string) (Line, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(description,''), status, merged_into_id, ST_AsText(path), created_at, updated_at
		FROM lines WHERE id=$1
	`, id)
	ln, err := scanLine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrNotFound
		}
		return Line{}, err
	}
	return ln, nil
}

func (s *Service) Update(ctx context.Context, id string, patch LineUpdate) (Line, error) {
	ln, err := s.Get(ctx, id)
	if err != nil {
		return Line{}, err
	}

	if patch.Status == StatusMerged {
		if err := s.merge(ctx, &ln, patch.MergedIntoID); err != nil {
			return Line{}, err
		}
	}

	if patch.Name != "" {
		ln.Name = patch.Name
	}
	if patch.Description != "" {
		ln.Description = patch.Description
	}
	if patch.Status != "" {
		ln.Status = patch.Status
	}
	if patch.MergedIntoID != nil {
		ln.MergedIntoID = patch.MergedIntoID
	}
	if patch.Path != nil {
		ln.Path = patch.Path
	}

	wkt := geo.LineStringWKT(ln.Path)
	_, err = s.db.Exec(ctx, `
		UPDATE lines
		SET name=$2, description=$3, status=$4, merged_into_id=$5,
		    path=CASE WHEN $6 = '' THEN NULL ELSE ST_GeomFromText($6, 4326) END,
		    updated_at=now()
		WHERE id=$1
	`, ln.ID, ln.Name, ln.Description, ln.Status, ln.MergedIntoID, wkt)
	if err != nil {
		return Line{}, err
	}
	s.invalidateCache(ctx)
	return ln, nil
}

// merge validates a merge request and moves the source line's recordings to
// the target before the status flips, so no session keeps pointing at a
// merged line.
func (s *Service) merge(ctx context.Context, source *Line, targetID *string) error {
	if targetID == nil {
		return fmt.Errorf("%w: merged_into_id required", ErrInvalidMerge)
	}
	if *targetID == source.ID {
		return fmt.Errorf("%w: cannot merge a line into itself", ErrInvalidMerge)
	}
	if source.Status == StatusMerged {
		mergedInto := ""
		if source.MergedIntoID != nil {
			mergedInto = *source.MergedIntoID
		}
		return fmt.Errorf("%w: line %s is already merged into %s", ErrInvalidMerge, source.ID, mergedInto)
	}

	target, err := s.Get(ctx, *targetID)
	if err != nil {
		return err
	}
	if target.Status == StatusMerged {
		return fmt.Errorf("%w: target line %s is itself merged", ErrInvalidMerge, target.ID)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE recording_sessions SET line_id=$2 WHERE line_id=$1
	`, source.ID, target.ID)
	return err
}

// ResolveForRecording maps an end request's line reference to a line id.
// An explicit id must exist and must not be merged away; a name registers a
// new pending line for curators to review.
func (s *Service) ResolveForRecording(ctx context.Context, lineID *string, lineName string) (string, error) {
	if lineID != nil {
		ln, err := s.Get(ctx, *lineID)
		if err != nil {
			return "", err
		}
		if ln.Status == StatusMerged {
			mergedInto := ""
			if ln.MergedIntoID != nil {
				mergedInto = *ln.MergedIntoID
			}
			return "", &MergedError{LineID: ln.ID, MergedInto: mergedInto}
		}
		return ln.ID, nil
	}

	created, err := s.Create(ctx, LineCreate{Name: lineName})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// DiscardPending removes a line that was registered for a session end that
// did not go through. Only pending lines qualify; a curator may already have
// acted on anything else.
func (s *Service) DiscardPending(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM lines WHERE id=$1 AND status=$2
	`, id, StatusPending)
	return err
}

func (s *Service) cachedApproved(ctx context.Context) ([]Line, bool) {
	if s.redis == nil {
		return nil, false
	}
	payload, err := s.redis.Get(ctx, approvedCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var lines []Line
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, false
	}
	return lines, true
}

func (s *Service) storeApproved(ctx context.Context, lines []Line) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, approvedCacheKey, payload, s.cacheTTL).Err(); err != nil {
		log.Printf("line cache set failed: %v", err)
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, approvedCacheKey).Err(); err != nil {
		log.Printf("line cache invalidation failed: %v", err)
	}
}

func scanLine(row interface{ Scan(dest ...any) error }) (Line, error) {
	var ln Line
	var pathWKT *string
	err := row.Scan(&ln.ID, &ln.Name, &ln.Description, &ln.Status, &ln.MergedIntoID,
		&pathWKT, &ln.CreatedAt, &ln.UpdatedAt)
	if err != nil {
		return Line{}, err
	}
	if pathWKT != nil {
		coords, err := geo.ParseLineStringWKT(*pathWKT)
		if err != nil {
			return Line{}, err
		}
		ln.Path = coords
	}
	return ln, nil
}
