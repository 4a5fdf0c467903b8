package tokencache

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	bridge "github.com/goliatone/go-auth-bridge"
)

// TokenRecord is the persisted token pair. Realm keys the row so several
// bridges can share one database file.
type TokenRecord struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:tok"`
	Realm         string     `bun:"realm,pk" json:"realm"`
	AccessToken   string     `bun:"access_token,notnull" json:"access_token"`
	RefreshToken  string     `bun:"refresh_token,notnull" json:"refresh_token"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// SQL persists the token pair in a bun-managed table.
type SQL struct {
	db    *bun.DB
	realm string
}

var _ bridge.TokenCache = (*SQL)(nil)

// NewSQL creates a SQL token cache scoped to the given realm.
func NewSQL(db *bun.DB, realm string) *SQL {
	if realm == "" {
		realm = "default"
	}
	return &SQL{db: db, realm: realm}
}

// Open creates a SQLite-backed bun handle at path, ready for NewSQL.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open token database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateTable provisions the auth_tokens table.
func (s *SQL) CreateTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*TokenRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create token table")
	}
	return nil
}

func (s *SQL) Load(ctx context.Context) (bridge.TokenPair, error) {
	record := new(TokenRecord)

	err := s.db.NewSelect().
		Model(record).
		Where("realm = ?", s.realm).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return bridge.TokenPair{}, nil
		}
		return bridge.TokenPair{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load tokens")
	}

	tokens := bridge.TokenPair{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
	}
	if record.ExpiresAt != nil {
		tokens.ExpiresAt = *record.ExpiresAt
	}

	return tokens, nil
}

func (s *SQL) Save(ctx context.Context, tokens bridge.TokenPair) error {
	record := &TokenRecord{
		Realm:        s.realm,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UpdatedAt:    time.Now(),
	}
	if !tokens.ExpiresAt.IsZero() {
		expires := tokens.ExpiresAt
		record.ExpiresAt = &expires
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (realm) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to save tokens")
	}

	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*TokenRecord)(nil)).
		Where("realm = ?", s.realm).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to clear tokens")
	}
	return nil
}
