package lifecycle_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"zk-tax-system/internal/chain"
	"zk-tax-system/internal/commitment"
	"zk-tax-system/internal/config"
	"zk-tax-system/internal/database"
	"zk-tax-system/internal/lifecycle"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/store"
	"zk-tax-system/internal/zkp"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	reasoncodes "zk-tax-system/pkg/reason_codes"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner   = "taxpayer-1"
	address = "0x1111111111111111111111111111111111111111"
	secret  = "correct horse battery staple"
)

var (
	soundOnce    sync.Once
	soundBackend *zkp.SoundBackend
	soundErr     error
)

func sound(t *testing.T) *zkp.SoundBackend {
	t.Helper()
	soundOnce.Do(func() {
		soundBackend, soundErr = zkp.NewDevelopmentBackend(logger.Nop())
	})
	require.NoError(t, soundErr)
	return soundBackend
}

type fixture struct {
	svc     *lifecycle.Service
	advance func(time.Duration)
	events  *rabbitmq.MemoryPublisher
}

func newFixture(t *testing.T, backend zkp.Backend, gateway chain.Gateway, mode config.DeploymentMode) fixture {
	t.Helper()
	db, err := database.OpenInMemory(strings.ReplaceAll(t.Name(), "/", "_") + "_" + uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	events := &rabbitmq.MemoryPublisher{}
	svc := lifecycle.NewService(store.NewProofRepository(db), backend, gateway, events, mode,
		config.LifecycleConfig{ProofTTL: 24 * time.Hour}, logger.Nop())
	clock, advance := timeutil.FixedClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	svc.Clock = clock
	return fixture{svc: svc, advance: advance, events: events}
}

func pairingGateway(t *testing.T) *chain.SimulatedGateway {
	t.Helper()
	v, err := chain.NewEVMVerifier(sound(t).VerifyingKey())
	require.NoError(t, err)
	return chain.NewSimulatedGateway(logger.Nop(), chain.WithVerifier(v))
}

func commit(t *testing.T, f fixture, income uint64) *model.IncomeProof {
	t.Helper()
	res, err := f.svc.GenerateCommitment(context.Background(), owner, income, secret, "")
	require.NoError(t, err)
	assert.Empty(t, res.Secret)
	assert.Nil(t, res.CommitmentTx)
	return res.Proof
}

func TestSoundProofLifecycle(t *testing.T) {
	ctx := context.Background()
	gw := pairingGateway(t)
	f := newFixture(t, sound(t), gw, config.Development)

	proof := commit(t, f, 800000)
	assert.Equal(t, model.StatusCommitmentGenerated, proof.Status)
	assert.Equal(t, commitment.Commit(800000, secret).Hex(), proof.Commitment)

	generated, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofGenerated, generated.Status)
	assert.Equal(t, uint64(700000), generated.Threshold)
	assert.Equal(t, zkp.ProvenanceSound, generated.ProofProvenance)
	assert.Equal(t, []string{commitment.Commit(800000, secret).Decimal(), "700000", "1"}, generated.PublicSignals)
	assert.NotEmpty(t, generated.ProofBlob)

	local, err := f.svc.VerifyLocally(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofVerified, local.Proof.Status)
	assert.Equal(t, zkp.MethodPairing, local.Method)
	assert.False(t, local.Weak)
	require.NotNil(t, local.Proof.VerifiedAt)

	again, err := f.svc.VerifyLocally(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofVerified, again.Proof.Status)

	onChain, err := f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofVerifiedOnChain, onChain.Status)
	assert.Equal(t, model.VerifiedByLedgerReadOnly, onChain.VerificationProvenance)
	assert.Len(t, onChain.VerificationTxHash, 66)
	assert.Empty(t, onChain.OnChainClaim)

	repeat, err := f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	require.NoError(t, err)
	assert.Equal(t, onChain.VerificationTxHash, repeat.VerificationTxHash)
	assert.Equal(t, 1, gw.Calls())
	assert.Equal(t, 0, gw.Submissions())

	// created, generated, verified, on chain
	assert.Equal(t, 4, f.events.Count())
}

func TestBelowThresholdIsRejectedBeforeAnythingElse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	proof := commit(t, f, 500000)

	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 500000, secret, ">700000")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))

	// the range check wins over a wrong secret
	_, err = f.svc.GenerateProof(ctx, owner, proof.Id, 500000, "wrong", ">700000")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))

	current, err := f.svc.Get(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCommitmentGenerated, current.Status)
	assert.False(t, current.HasProof())
}

func TestGenerateProofChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	proof := commit(t, f, 800000)

	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, "wrong secret", ">700000")
	assert.Equal(t, reasoncodes.ErrCommitmentMismatch, reasoncodes.CodeOf(err))

	_, err = f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, "700000")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))

	_, err = f.svc.GenerateProof(ctx, "someone-else", proof.Id, 800000, secret, ">700000")
	assert.Equal(t, reasoncodes.ErrNotFound, reasoncodes.CodeOf(err))

	generated, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)
	assert.Equal(t, zkp.ProvenanceSimulated, generated.ProofProvenance)
	assert.Empty(t, generated.ProofBlob)

	_, err = f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">500000")
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))

	stored, err := f.svc.Get(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, generated.PublicSignals, stored.PublicSignals)
	assert.Equal(t, ">700000", stored.RangeLabel)
}

func TestSimulatedVerificationIsWeak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	proof := commit(t, f, 800000)

	_, err := f.svc.VerifyLocally(ctx, owner, proof.Id)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))

	_, err = f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	res, err := f.svc.VerifyLocally(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, zkp.MethodStructural, res.Method)
	assert.True(t, res.Weak)
	assert.Equal(t, string(reasoncodes.StructuralVerification), res.Detail)
}

func TestExpiryBlocksTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	proof := commit(t, f, 800000)

	f.advance(25 * time.Hour)

	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
	assert.Contains(t, reasoncodes.MessageOf(err), "expired")

	current, err := f.svc.Get(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, current.Status)

	_, err = f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
	_, err = f.svc.Revoke(ctx, proof.Id, "fraud")
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
}

func TestExpireAndSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)

	first := commit(t, f, 800000)
	_, err := f.svc.Expire(ctx, first.Id)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err), "not due yet")

	commit(t, f, 900000)
	commit(t, f, 950000)
	f.advance(48 * time.Hour)
	fresh := commit(t, f, 990000)

	expired, err := f.svc.Expire(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, expired.Status)

	_, err = f.svc.Expire(ctx, first.Id)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err), "expired is terminal")

	n, err := f.svc.ExpireOverdue(ctx, f.svc.Clock())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	still, err := f.svc.Get(ctx, owner, fresh.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCommitmentGenerated, still.Status)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	proof := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	_, err = f.svc.Revoke(ctx, proof.Id, " ")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))

	revoked, err := f.svc.Revoke(ctx, proof.Id, "income statement withdrawn")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRevoked, revoked.Status)
	assert.Equal(t, "income statement withdrawn", revoked.RevocationReason)

	_, err = f.svc.Revoke(ctx, proof.Id, "again")
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
	_, err = f.svc.VerifyLocally(ctx, owner, proof.Id)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
}

func TestVerifyOnChainSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	gw := chain.NewSimulatedGateway(logger.Nop())
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, config.Test)
	proof := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*model.IncomeProof, 6)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, model.StatusProofVerifiedOnChain, results[i].Status)
		assert.Equal(t, results[0].VerificationTxHash, results[i].VerificationTxHash)
	}
	assert.Equal(t, 1, gw.Submissions())
	// without a verifier contract the gateway can only hand out synthetic hashes
	assert.Equal(t, model.VerifiedSynthetic, results[0].VerificationProvenance)
}

func TestVerifyOnChainReclaimsAbandonedClaim(t *testing.T) {
	ctx := context.Background()
	gw := chain.NewSimulatedGateway(logger.Nop())
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, config.Test)
	f.svc.LedgerTimeout = time.Minute
	proof := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	// a process that died between claiming and releasing
	ok, err := f.svc.Proofs.ClaimOnChain(ctx, proof.Id, "crashed-process", f.svc.Clock(), 3*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	assert.Equal(t, reasoncodes.ErrStateConflict, reasoncodes.CodeOf(err))
	assert.Equal(t, 0, gw.Submissions())

	f.advance(4 * time.Minute)
	got, err := f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofVerifiedOnChain, got.Status)
	assert.Empty(t, got.OnChainClaim)
	assert.Nil(t, got.OnChainClaimedAt)
	assert.Equal(t, 1, gw.Submissions())
}

type blockingGateway struct {
	chain.Gateway
	entered  chan struct{}
	release  chan struct{}
	enterOne sync.Once
	seen     chan error
}

func newBlockingGateway(inner chain.Gateway) *blockingGateway {
	return &blockingGateway{
		Gateway: inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
		seen:    make(chan error, 1),
	}
}

func (g *blockingGateway) CallVerifier(ctx context.Context, cd chain.Calldata) (bool, error) {
	g.enterOne.Do(func() { close(g.entered) })
	<-g.release
	select {
	case g.seen <- ctx.Err():
	default:
	}
	return g.Gateway.CallVerifier(ctx, cd)
}

func TestVerifyOnChainSurvivesFirstCallerCancel(t *testing.T) {
	ctx := context.Background()
	gw := newBlockingGateway(chain.NewSimulatedGateway(logger.Nop()))
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, config.Test)
	proof := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.VerifyOnChain(firstCtx, owner, proof.Id, address)
		firstErr <- err
	}()
	<-gw.entered

	type outcome struct {
		proof *model.IncomeProof
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		p, err := f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
		second <- outcome{p, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gw.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, model.StatusProofVerifiedOnChain, res.proof.Status)
	assert.NoError(t, <-gw.seen, "ledger call ran under the first caller's context")
}

func TestVerifyLocallyChecksArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, sound(t), chain.NewSimulatedGateway(logger.Nop()), config.Test)

	first := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, first.Id, 800000, secret, ">700000")
	require.NoError(t, err)
	second := commit(t, f, 900000)
	other, err := f.svc.GenerateProof(ctx, owner, second.Id, 900000, secret, ">700000")
	require.NoError(t, err)

	require.NoError(t, f.svc.Proofs.Update(ctx, first.Id, &model.IncomeProof{ProofBlob: other.ProofBlob}, "proof_blob"))

	_, err = f.svc.VerifyLocally(ctx, owner, first.Id)
	assert.Equal(t, reasoncodes.ErrCryptoVerification, reasoncodes.CodeOf(err))

	current, err := f.svc.Get(ctx, owner, first.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofGenerated, current.Status)

	res, err := f.svc.VerifyLocally(ctx, owner, second.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofVerified, res.Proof.Status)
}

func TestVerifyOnChainRejectsInvalidProof(t *testing.T) {
	ctx := context.Background()
	gw := pairingGateway(t)
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, config.Test)
	proof := commit(t, f, 800000)
	_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
	require.NoError(t, err)

	_, err = f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
	assert.Equal(t, reasoncodes.ErrCryptoVerification, reasoncodes.CodeOf(err))

	current, err := f.svc.Get(ctx, owner, proof.Id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProofGenerated, current.Status)
	assert.Empty(t, current.OnChainClaim)

	_, err = f.svc.VerifyOnChain(ctx, owner, proof.Id, "not-an-address")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))
}

func TestVerifyOnChainUnreachableLedger(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		mode    config.DeploymentMode
		wantErr bool
	}{
		{config.Development, false},
		{config.Production, true},
	} {
		t.Run(string(tc.mode), func(t *testing.T) {
			gw := chain.NewSimulatedGateway(logger.Nop(), chain.WithFailures(true, true))
			f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, tc.mode)
			proof := commit(t, f, 800000)
			_, err := f.svc.GenerateProof(ctx, owner, proof.Id, 800000, secret, ">700000")
			require.NoError(t, err)

			got, err := f.svc.VerifyOnChain(ctx, owner, proof.Id, address)
			if tc.wantErr {
				assert.Equal(t, reasoncodes.ErrChain, reasoncodes.CodeOf(err))
				current, err := f.svc.Get(ctx, owner, proof.Id)
				require.NoError(t, err)
				assert.Equal(t, model.StatusProofGenerated, current.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StatusProofVerifiedOnChain, got.Status)
			assert.Equal(t, model.VerifiedSynthetic, got.VerificationProvenance)
		})
	}
}

func TestCreateRecordsCommitmentOnChain(t *testing.T) {
	ctx := context.Background()
	gw := chain.NewSimulatedGateway(logger.Nop())
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), gw, config.Test)

	res, err := f.svc.GenerateCommitment(ctx, owner, 800000, "", address)
	require.NoError(t, err)
	assert.Len(t, res.Secret, 64)
	require.NotNil(t, res.CommitmentTx)
	assert.False(t, res.CommitmentTx.Failed())

	digest, err := commitment.ParseDigest(res.Proof.Commitment)
	require.NoError(t, err)
	assert.True(t, gw.HasCommitment(digest))

	stored, err := f.svc.Get(ctx, owner, res.Proof.Id)
	require.NoError(t, err)
	assert.Equal(t, res.CommitmentTx.Hash, stored.CommitmentTxHash)

	failing := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop(), chain.WithFailures(false, true)), config.Test)
	res, err = failing.svc.Create(ctx, owner, digest.Hex(), address)
	require.NoError(t, err)
	require.NotNil(t, res.CommitmentTx)
	assert.True(t, res.CommitmentTx.Failed())
	assert.Contains(t, res.CommitmentTx.Error, string(reasoncodes.ErrChain))

	_, err = failing.svc.Get(ctx, owner, res.Proof.Id)
	assert.NoError(t, err)
}

func TestCreateValidatesInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)

	_, err := f.svc.Create(ctx, "", "0x"+strings.Repeat("00", 32), "")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))

	_, err = f.svc.Create(ctx, owner, "0x1234", "")
	assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))
}

func TestParameters(t *testing.T) {
	f := newFixture(t, zkp.NewSimulatedBackend(logger.Nop()), chain.NewSimulatedGateway(logger.Nop()), config.Test)
	params := f.svc.Parameters()
	assert.Equal(t, zkp.ProvenanceSimulated, params.Provenance)
	assert.Nil(t, params.VerificationKey)
	require.Len(t, params.Ranges, 4)
	assert.Equal(t, ">1000000", params.Ranges[3].Label)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		label     string
		threshold uint64
		wantErr   bool
	}{
		{">700000", 700000, false},
		{" > 300000 ", 300000, false},
		{"700000", 0, true},
		{">", 0, true},
		{">-5", 0, true},
		{">12abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			r, err := lifecycle.ParseRange(tt.label)
			if tt.wantErr {
				assert.Equal(t, reasoncodes.ErrValidation, reasoncodes.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.threshold, r.Threshold)
			assert.True(t, r.Admits(tt.threshold+1))
			assert.False(t, r.Admits(tt.threshold))
		})
	}
}
