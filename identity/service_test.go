package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)

	req := RegisterRequest{
		Handle:   "green-valley-farm",
		Password: "supersafe",
		Role:     RoleProducer,
	}

	ctx := context.Background()
	ident, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if ident.Handle != req.Handle {
		t.Fatalf("expected handle %q got %q", req.Handle, ident.Handle)
	}
	if ident.Role != RoleProducer {
		t.Fatalf("register: expected role %s got %s", RoleProducer, ident.Role)
	}
	if ident.Balance != 100000 {
		t.Fatalf("register: expected opening balance 100000 got %d", ident.Balance)
	}

	resp, err := svc.Login(ctx, LoginRequest{Handle: req.Handle, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Identity.ID != ident.ID {
		t.Fatalf("login: expected identity id %q got %q", ident.ID, resp.Identity.ID)
	}

	tokenID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenID != ident.ID {
		t.Fatalf("verify token: expected %q got %q", ident.ID, tokenID)
	}
	if tokenRole != RoleProducer {
		t.Fatalf("verify token: expected role %s got %s", RoleProducer, tokenRole)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)

	_, err := svc.Register(context.Background(), RegisterRequest{
		Handle:   "shorty",
		Password: "short",
		Role:     RoleConsumer,
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{
		Handle:   "middleman",
		Password: "strongpassword",
		Role:     Role("distributor"),
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Handle:   "   ",
		Password: "strongpassword",
		Role:     RoleConsumer,
	}); err == nil {
		t.Fatal("expected validation error for blank handle")
	}
}

func TestService_DuplicateHandle(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)

	req := RegisterRequest{
		Handle:   "green-valley-farm",
		Password: "strongpassword",
		Role:     RoleProducer,
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateHandle) {
		t.Fatalf("expected ErrDuplicateHandle, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)

	ctx := context.Background()
	_, err := svc.Login(ctx, LoginRequest{Handle: "nobody", Password: "irrelevant"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterRequest{
		Handle:   "green-valley-farm",
		Password: "strongpassword",
		Role:     RoleProducer,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = svc.Login(ctx, LoginRequest{Handle: "green-valley-farm", Password: "wrongpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
}

func TestService_VerifyTokenRejectsForgedSecret(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)
	other := NewService(repo, "other-secret", 100000)

	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{
		Handle:   "green-valley-farm",
		Password: "strongpassword",
		Role:     RoleProducer,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := svc.Login(ctx, LoginRequest{Handle: "green-valley-farm", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, _, err := other.VerifyToken(resp.Token); err == nil {
		t.Fatal("expected verification to fail with mismatched secret")
	}
}

func TestService_AverageRating(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret", 100000)

	ctx := context.Background()
	ident, err := svc.Register(ctx, RegisterRequest{
		Handle:   "green-valley-farm",
		Password: "strongpassword",
		Role:     RoleProducer,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := svc.AverageRating(ctx, ident.ID); !errors.Is(err, ErrUnrated) {
		t.Fatalf("expected ErrUnrated, got %v", err)
	}

	stored := repo.byID[ident.ID]
	stored.RatingSum = 9
	stored.RatingCount = 2
	repo.byID[ident.ID] = stored
	repo.byHandle[ident.Handle] = stored

	avg, count, err := svc.AverageRating(ctx, ident.ID)
	if err != nil {
		t.Fatalf("average rating: %v", err)
	}
	if avg != 4.5 || count != 2 {
		t.Fatalf("expected average 4.5 over 2 scores, got %v over %d", avg, count)
	}
}

func TestRole_Valid(t *testing.T) {
	for _, role := range []Role{RoleProducer, RoleWholesaler, RoleRetailer, RoleConsumer} {
		if !role.Valid() {
			t.Fatalf("expected %s to be valid", role)
		}
	}
	for _, role := range []Role{Role(""), Role("admin"), Role("PRODUCER")} {
		if role.Valid() {
			t.Fatalf("expected %q to be invalid", role)
		}
	}
}

type fakeRepository struct {
	byHandle map[string]Identity
	byID     map[string]Identity
	nextID   int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byHandle: make(map[string]Identity),
		byID:     make(map[string]Identity),
		nextID:   1,
	}
}

func (f *fakeRepository) Create(_ context.Context, params CreateParams) (Identity, error) {
	if _, exists := f.byHandle[strings.ToLower(params.Handle)]; exists {
		return Identity{}, ErrDuplicateHandle
	}

	id := fmt.Sprintf("identity-%d", f.nextID)
	f.nextID++

	ident := Identity{
		ID:           id,
		Handle:       params.Handle,
		Role:         params.Role,
		PasswordHash: params.PasswordHash,
		Balance:      params.Balance,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.byHandle[strings.ToLower(ident.Handle)] = ident
	f.byID[ident.ID] = ident

	return ident, nil
}

func (f *fakeRepository) GetByHandle(_ context.Context, handle string) (Identity, error) {
	ident, ok := f.byHandle[strings.ToLower(handle)]
	if !ok {
		return Identity{}, ErrUnknownHandle
	}
	return ident, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Identity, error) {
	ident, ok := f.byID[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}
