package store_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"zk-tax-system/internal/database"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/store"
	"zk-tax-system/internal/zkp"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newProof(owner string, expiresAt time.Time) *model.IncomeProof {
	return &model.IncomeProof{
		Id:         uuid.NewString(),
		Owner:      owner,
		Commitment: "0x" + strings.Repeat("0a", 32),
		Status:     model.StatusCommitmentGenerated,
		ExpiresAt:  expiresAt,
	}
}

func seedProof(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	p := newProof("alice", time.Now().Add(time.Hour))
	p.Id = id
	p.Status = model.StatusProofVerified
	require.NoError(t, store.NewProofRepository(db).Create(context.Background(), p))
}

func TestProofRepositoryScopesByOwner(t *testing.T) {
	ctx := context.Background()
	repo := store.NewProofRepository(setupTestDB(t))

	p := newProof("alice", time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, p.Id, "alice")
	require.NoError(t, err)
	assert.Equal(t, p.Commitment, got.Commitment)

	_, err = repo.Get(ctx, p.Id, "mallory")
	assert.Equal(t, reasoncodes.ErrNotFound, reasoncodes.CodeOf(err))

	_, err = repo.GetById(ctx, uuid.NewString())
	assert.Equal(t, reasoncodes.ErrNotFound, reasoncodes.CodeOf(err))
}

func TestProofTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := store.NewProofRepository(setupTestDB(t))

	p := newProof("alice", time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, p))

	changes := &model.IncomeProof{
		Proof:           &zkp.ProofObject{PiA: []string{"1", "2", "1"}, Protocol: "groth16"},
		PublicSignals:   []string{"7", "700000", "1"},
		ProofProvenance: zkp.ProvenanceSound,
		Threshold:       700000,
	}
	from := []model.ProofStatus{model.StatusCommitmentGenerated}

	ok, err := repo.Transition(ctx, p.Id, from, model.StatusProofGenerated, changes,
		"proof", "public_signals", "proof_provenance", "threshold")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, p.Id, from, model.StatusProofGenerated, &model.IncomeProof{Threshold: 1}, "threshold")
	require.NoError(t, err)
	assert.False(t, ok, "second writer loses")

	got, err := repo.GetById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofGenerated, got.Status)
	assert.Equal(t, uint64(700000), got.Threshold)
	assert.Equal(t, []string{"7", "700000", "1"}, got.PublicSignals)
	require.NotNil(t, got.Proof)
	assert.Equal(t, "groth16", got.Proof.Protocol)
	assert.Equal(t, p.Commitment, got.Commitment)
}

func TestOnChainClaim(t *testing.T) {
	ctx := context.Background()
	repo := store.NewProofRepository(setupTestDB(t))
	now := time.Now().UTC()
	lease := 3 * time.Minute

	p := newProof("alice", now.Add(time.Hour))
	p.Status = model.StatusProofVerified
	require.NoError(t, repo.Create(ctx, p))

	ok, err := repo.ClaimOnChain(ctx, p.Id, "a", now, lease)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ClaimOnChain(ctx, p.Id, "b", now, lease)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseOnChainClaim(ctx, p.Id, "b"), "foreign token is a no-op")
	ok, err = repo.ClaimOnChain(ctx, p.Id, "b", now, lease)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseOnChainClaim(ctx, p.Id, "a"))
	got, err := repo.GetById(ctx, p.Id)
	require.NoError(t, err)
	assert.Empty(t, got.OnChainClaim)
	assert.Nil(t, got.OnChainClaimedAt)

	ok, err = repo.ClaimOnChain(ctx, p.Id, "b", now, lease)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOnChainClaimLeaseExpires(t *testing.T) {
	ctx := context.Background()
	repo := store.NewProofRepository(setupTestDB(t))
	now := time.Now().UTC()
	lease := 3 * time.Minute

	p := newProof("alice", now.Add(time.Hour))
	p.Status = model.StatusProofGenerated
	require.NoError(t, repo.Create(ctx, p))

	ok, err := repo.ClaimOnChain(ctx, p.Id, "crashed", now, lease)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ClaimOnChain(ctx, p.Id, "next", now.Add(lease-time.Second), lease)
	require.NoError(t, err)
	assert.False(t, ok, "claim is still within its lease")

	ok, err = repo.ClaimOnChain(ctx, p.Id, "next", now.Add(lease+time.Second), lease)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "next", got.OnChainClaim)
	require.NotNil(t, got.OnChainClaimedAt)

	require.NoError(t, repo.ReleaseOnChainClaim(ctx, p.Id, "crashed"), "the abandoned token no longer owns the claim")
	got, err = repo.GetById(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "next", got.OnChainClaim)
}

func TestListExpirable(t *testing.T) {
	ctx := context.Background()
	repo := store.NewProofRepository(setupTestDB(t))
	now := time.Now().UTC()

	overdue := newProof("alice", now.Add(-time.Hour))
	fresh := newProof("alice", now.Add(time.Hour))
	revoked := newProof("alice", now.Add(-time.Hour))
	revoked.Status = model.StatusRevoked
	for _, p := range []*model.IncomeProof{overdue, fresh, revoked} {
		require.NoError(t, repo.Create(ctx, p))
	}

	got, err := repo.ListExpirable(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.Id, got[0].Id)
}

func TestPaymentSlotPolicy(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedProof(t, db, "proof-1")
	repo := store.NewPaymentRepository(db)

	newPayment := func(year int) *model.TaxPayment {
		return &model.TaxPayment{
			Id:         uuid.NewString(),
			Owner:      "alice",
			ProofId:    "proof-1",
			Amount:     120000,
			FiscalYear: year,
			Status:     model.PaymentPending,
		}
	}

	first := newPayment(2024)
	require.NoError(t, repo.CreateInOpenSlot(ctx, first))

	err := repo.CreateInOpenSlot(ctx, newPayment(2024))
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))

	require.NoError(t, repo.CreateInOpenSlot(ctx, newPayment(2025)), "other fiscal year is free")

	ok, err := repo.Transition(ctx, first.Id, []model.PaymentStatus{model.PaymentPending}, model.PaymentFailed,
		&model.TaxPayment{FailureReason: "reverted"}, "failure_reason")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.CreateInOpenSlot(ctx, newPayment(2024)), "failed payments free the slot")

	payments, err := repo.ListByProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.Len(t, payments, 3)

	got, err := repo.Get(ctx, first.Id, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, got.Status)
	assert.Equal(t, "reverted", got.FailureReason)

	_, err = repo.Get(ctx, first.Id, "bob")
	assert.True(t, reasoncodes.Is(err, reasoncodes.ErrNotFound))

	orphan := newPayment(2026)
	orphan.ProofId = "missing"
	assert.True(t, reasoncodes.Is(repo.CreateInOpenSlot(ctx, orphan), reasoncodes.ErrNotFound))
}

func TestPaymentSlotUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedProof(t, db, "proof-1")
	repo := store.NewPaymentRepository(db)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.CreateInOpenSlot(ctx, &model.TaxPayment{
				Id:         uuid.NewString(),
				Owner:      "alice",
				ProofId:    "proof-1",
				Amount:     1000,
				FiscalYear: 2024,
				Status:     model.PaymentPending,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
	}
	assert.Equal(t, 1, created)

	payments, err := repo.ListByProof(ctx, "proof-1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestReceiptIdIsUnique(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedProof(t, db, "p1")
	seedProof(t, db, "p2")
	repo := store.NewPaymentRepository(db)

	receipt := "RCPT-1-000001"
	a := &model.TaxPayment{Id: uuid.NewString(), Owner: "a", ProofId: "p1", Amount: 1, FiscalYear: 2024, Status: model.PaymentCompleted, ReceiptId: &receipt}
	b := &model.TaxPayment{Id: uuid.NewString(), Owner: "a", ProofId: "p2", Amount: 1, FiscalYear: 2024, Status: model.PaymentCompleted, ReceiptId: &receipt}

	require.NoError(t, repo.CreateInOpenSlot(ctx, a))
	assert.Error(t, repo.CreateInOpenSlot(ctx, b))
}

func TestOutboxRepositoryRetryLimit(t *testing.T) {
	ctx := context.Background()
	repo := store.NewOutboxRepository(setupTestDB(t))

	_, err := repo.Add(ctx, "ProofEventPublisher", []byte(`{"proof_id":"a"}`))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "PaymentEventPublisher", []byte(`{"payment_id":"b"}`))
	require.NoError(t, err)

	pending, err := repo.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "ProofEventPublisher", pending[0].Publisher)

	require.NoError(t, repo.MarkPublished(ctx, pending[0].Id, time.Now()))
	for i := 0; i < store.MaxOutboxRetries; i++ {
		require.NoError(t, repo.RecordFailure(ctx, pending[1].Id, assert.AnError))
	}

	pending, err = repo.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
