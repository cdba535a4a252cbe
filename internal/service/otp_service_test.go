package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/careloop/rpm-auth/internal/domain"
	"github.com/careloop/rpm-auth/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeOTPRepo mimics the conditional-update consume semantics of the real
// challenge table.
type fakeOTPRepo struct {
	challenges []*domain.OTPChallenge
	nextID     int64
	createErr  error
}

func (f *fakeOTPRepo) Create(_ context.Context, challenge *domain.OTPChallenge) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, c := range f.challenges {
		if c.UserID == challenge.UserID && c.Purpose == challenge.Purpose && !c.Consumed {
			c.Consumed = true
		}
	}
	f.nextID++
	challenge.ID = f.nextID
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	cp := *challenge
	f.challenges = append(f.challenges, &cp)
	return nil
}

func (f *fakeOTPRepo) Consume(_ context.Context, userID int64, purpose, code string, notBefore time.Time) error {
	for _, c := range f.challenges {
		if c.UserID == userID && c.Purpose == purpose && c.Code == code &&
			!c.Consumed && c.CreatedAt.After(notBefore) {
			c.Consumed = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeOTPRepo) latest() *domain.OTPChallenge {
	if len(f.challenges) == 0 {
		return nil
	}
	return f.challenges[len(f.challenges)-1]
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendCode(_ context.Context, _ string, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, code)
	return nil
}

var otpTestUser = &domain.User{ID: 7, Email: "alice@example.com", Username: "alice"}

func TestOTPIssue_PersistsAndDelivers(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))

	require.Len(t, sender.sent, 1)
	code := sender.sent[0]
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be numeric, got %q", code)
	}

	challenge := repo.latest()
	require.NotNil(t, challenge)
	assert.Equal(t, code, challenge.Code, "the delivered code is the persisted code")
	assert.False(t, challenge.Consumed)
}

func TestOTPIssue_FreshCodeEachTime(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))
		seen[sender.sent[i]] = true
	}
	// 20 draws from a million values colliding into one bucket would mean
	// the generator is broken, not unlucky.
	assert.Greater(t, len(seen), 1)
}

func TestOTPIssue_SupersedesPriorChallenge(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))
	firstCode := sender.sent[0]
	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))

	err := svc.Verify(context.Background(), otpTestUser.ID, firstCode, domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP, "superseded code must not verify")

	err = svc.Verify(context.Background(), otpTestUser.ID, sender.sent[1], domain.OTPPurposeLogin)
	assert.NoError(t, err)
}

func TestOTPIssue_DeliveryFailure(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{err: errors.New("connection refused")}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	err := svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, ErrOTPDeliveryFailed)
}

func TestOTPVerify_SingleUse(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))
	code := sender.sent[0]

	require.NoError(t, svc.Verify(context.Background(), otpTestUser.ID, code, domain.OTPPurposeLogin))
	assert.ErrorIs(t, svc.Verify(context.Background(), otpTestUser.ID, code, domain.OTPPurposeLogin), ErrInvalidOrExpiredOTP)
}

func TestOTPVerify_ExpiredCode(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))
	repo.latest().CreatedAt = time.Now().Add(-10 * time.Minute)

	err := svc.Verify(context.Background(), otpTestUser.ID, sender.sent[0], domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
}

func TestOTPVerify_WrongCode(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))

	err := svc.Verify(context.Background(), otpTestUser.ID, "000000", domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
}

func TestOTPVerify_WrongUser(t *testing.T) {
	repo := &fakeOTPRepo{}
	sender := &fakeSender{}
	svc := NewOTPService(repo, sender, 5*time.Minute, zap.NewNop())

	require.NoError(t, svc.Issue(context.Background(), otpTestUser, domain.OTPPurposeLogin))

	err := svc.Verify(context.Background(), 999, sender.sent[0], domain.OTPPurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredOTP)
}
