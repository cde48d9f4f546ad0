package mock

import (
	"context"
	"sync"
	"time"

	"github.com/fleetgate/fleetgate/internal/identity"
	"github.com/fleetgate/fleetgate/pkg/models"
	"github.com/google/uuid"
)

// TestSecret signs tokens issued by Provider.
const TestSecret = "test-secret-0123456789abcdef0123"

type principal struct {
	models.Principal
	password string
}

// Provider is an in-memory identity.Provider. Each *Err field, when set,
// makes the matching method fail.
type Provider struct {
	CreateErr  error
	DeleteErr  error
	AuthErr    error
	SetRoleErr error

	tokens *identity.Tokens

	mu           sync.Mutex
	principals   map[uuid.UUID]*principal
	createCalls  int
	deleteCalls  int
	authCalls    int
	setRoleCalls int
}

// NewProvider creates an empty in-memory identity provider.
func NewProvider() *Provider {
	tokens, err := identity.NewTokens(TestSecret, time.Hour)
	if err != nil {
		panic(err)
	}
	return &Provider{tokens: tokens, principals: make(map[uuid.UUID]*principal)}
}

func (p *Provider) CreatePrincipal(_ context.Context, np identity.NewPrincipal) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.CreateErr != nil {
		return uuid.Nil, p.CreateErr
	}
	email := identity.NormalizeEmail(np.Email)
	for _, existing := range p.principals {
		if existing.Email == email {
			return uuid.Nil, identity.ErrEmailTaken
		}
	}
	role := np.Role
	if role == "" {
		role = models.RoleRider
	}
	now := time.Now().UTC()
	id := uuid.New()
	p.principals[id] = &principal{
		Principal: models.Principal{
			ID: id, FullName: np.FullName, Email: email, Phone: np.Phone,
			Role: role, Confirmed: np.PreConfirmed, CreatedAt: now, UpdatedAt: now,
		},
		password: np.Password,
	}
	return id, nil
}

func (p *Provider) DeletePrincipal(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleteCalls++
	if p.DeleteErr != nil {
		return p.DeleteErr
	}
	delete(p.principals, id)
	return nil
}

func (p *Provider) Authenticate(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls++
	if p.AuthErr != nil {
		return nil, p.AuthErr
	}
	email = identity.NormalizeEmail(email)
	for _, pr := range p.principals {
		if pr.Email == email && pr.password == password {
			token, exp, err := p.tokens.Issue(pr.Principal)
			if err != nil {
				return nil, err
			}
			return &identity.Session{Token: token, ExpiresAt: exp, Principal: pr.Principal}, nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (p *Provider) SetRole(_ context.Context, id uuid.UUID, role models.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setRoleCalls++
	if p.SetRoleErr != nil {
		return p.SetRoleErr
	}
	pr, ok := p.principals[id]
	if !ok {
		return identity.ErrNotFound
	}
	pr.Role = role
	pr.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *Provider) GetPrincipal(_ context.Context, id uuid.UUID) (*models.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.principals[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := pr.Principal
	return &cp, nil
}

func (p *Provider) ParseSession(token string) (*identity.Claims, error) {
	return p.tokens.Parse(token)
}

// Seed inserts a principal directly and returns it.
func (p *Provider) Seed(email, password string, role models.Role) models.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	pr := &principal{
		Principal: models.Principal{
			ID: uuid.New(), FullName: "Seeded User", Email: identity.NormalizeEmail(email),
			Role: role, Confirmed: true, CreatedAt: now, UpdatedAt: now,
		},
		password: password,
	}
	p.principals[pr.ID] = pr
	return pr.Principal
}

// Token issues a session token for pr without checking credentials.
func (p *Provider) Token(pr models.Principal) string {
	token, _, err := p.tokens.Issue(pr)
	if err != nil {
		panic(err)
	}
	return token
}

// Count returns the number of stored principals.
func (p *Provider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.principals)
}

// Calls reports how many times each mutating method ran.
func (p *Provider) Calls() (create, del, auth, setRole int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls, p.deleteCalls, p.authCalls, p.setRoleCalls
}

var _ identity.Provider = (*Provider)(nil)
