package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when an email is unknown so a miss costs
// the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("fleetgate-dummy-password"), bcrypt.DefaultCost)

// PostgresProvider keeps principals in the principals table.
type PostgresProvider struct {
	pool   *pgxpool.Pool
	tokens *Tokens
	cost   int
}

// NewPostgresProvider creates a Provider backed by the principals table.
func NewPostgresProvider(pool *pgxpool.Pool, tokens *Tokens) *PostgresProvider {
	return &PostgresProvider{pool: pool, tokens: tokens, cost: bcrypt.DefaultCost}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const principalColumns = `id, full_name, email, phone, role, confirmed, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*models.Principal, string, error) {
	var p models.Principal
	var role, hash string
	if err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Phone, &role, &p.Confirmed,
		&p.CreatedAt, &p.UpdatedAt, &hash); err != nil {
		return nil, "", err
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, "", err
	}
	p.Role = r
	return &p, hash, nil
}

func (p *PostgresProvider) CreatePrincipal(ctx context.Context, np NewPrincipal) (uuid.UUID, error) {
	role := np.Role
	if role == "" {
		role = models.RoleRider
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(np.Password), p.cost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO principals (id, full_name, email, phone, password_hash, role, confirmed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id, strings.TrimSpace(np.FullName), NormalizeEmail(np.Email), strings.TrimSpace(np.Phone),
		string(hash), string(role), np.PreConfirmed, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return uuid.Nil, ErrEmailTaken
		}
		return uuid.Nil, fmt.Errorf("insert principal: %w", err)
	}
	return id, nil
}

func (p *PostgresProvider) DeletePrincipal(ctx context.Context, id uuid.UUID) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	return nil
}

func (p *PostgresProvider) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	principal, hash, err := scanPrincipal(p.pool.QueryRow(ctx,
		`SELECT `+principalColumns+`, password_hash FROM principals WHERE email = $1`, NormalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := p.tokens.Issue(*principal)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Principal: *principal}, nil
}

func (p *PostgresProvider) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE principals SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresProvider) GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	principal, _, err := scanPrincipal(p.pool.QueryRow(ctx,
		`SELECT `+principalColumns+`, password_hash FROM principals WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return principal, nil
}

func (p *PostgresProvider) ParseSession(token string) (*Claims, error) {
	return p.tokens.Parse(token)
}

var _ Provider = (*PostgresProvider)(nil)
