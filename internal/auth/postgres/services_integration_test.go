// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
)

var _ = Describe("Identity services on PostgreSQL", func() {
	var (
		ctx        context.Context
		now        time.Time
		identities *postgres.IdentityRepository
		creds      *postgres.CredentialRepository
		registry   *auth.Registry
		authn      *auth.Authenticator
		tokens     *auth.TokenManager
	)

	BeforeEach(func() {
		truncate()
		ctx = context.Background()
		now = time.Now().UTC().Truncate(time.Microsecond)

		identities = postgres.NewIdentityRepository(pool)
		creds = postgres.NewCredentialRepository(pool)
		params := auth.Argon2Params{Memory: 8 * 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLength: 16}
		hasher, err := auth.NewArgon2idHasherWithParams(params)
		Expect(err).NotTo(HaveOccurred())

		deps := auth.Deps{
			Identities:  identities,
			Credentials: creds,
			Transactor:  postgres.NewTransactor(pool),
			Crypto:      auth.NewCrypto(hasher, auth.NewRandomTokenGenerator(auth.DefaultTokenBytes)),
		}
		clock := auth.WithClock(func() time.Time { return now })

		registry, err = auth.NewRegistry(deps, clock)
		Expect(err).NotTo(HaveOccurred())
		authn, err = auth.NewAuthenticator(deps, clock)
		Expect(err).NotTo(HaveOccurred())
		tokens, err = auth.NewTokenManager(deps, clock)
		Expect(err).NotTo(HaveOccurred())
	})

	createConfirmed := func(username, password, email string) *auth.Identity {
		identity, err := registry.Create(ctx, username, password, email)
		Expect(err).NotTo(HaveOccurred())
		ok, err := tokens.ConfirmEmailAddress(ctx, identity, *identity.EmailConfirmationToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		return identity
	}

	Describe("registration", func() {
		It("persists the identity and its password credential", func() {
			identity, err := registry.Create(ctx, "alice", "s3cret", "a@x.com")
			Expect(err).NotTo(HaveOccurred())

			stored, err := identities.GetByID(ctx, identity.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Username).To(Equal("alice"))
			Expect(*stored.UnconfirmedEmailAddress).To(Equal("a@x.com"))
			Expect(stored.EmailAddress).To(BeNil())
			Expect(stored.CreatedAt).To(BeTemporally("==", now))
			Expect(stored.Credentials).To(HaveLen(1))
			Expect(stored.Credentials[0].Type).To(Equal(auth.CredentialTypePasswordArgon2id))

			found, err := authn.FindByUsernameAndPassword(ctx, "alice", "s3cret")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
		})

		It("rejects a taken username", func() {
			_, err := registry.Create(ctx, "alice", "s3cret", "a@x.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = registry.Create(ctx, "alice", "other", "b@x.com")
			Expect(errors.Is(err, auth.ErrDuplicateUsername)).To(BeTrue())
		})

		It("maps the confirmed email constraint on update", func() {
			createConfirmed("alice", "s3cret", "a@x.com")
			bob, err := registry.Create(ctx, "bob", "hunter2", "b@x.com")
			Expect(err).NotTo(HaveOccurred())

			clash := bob.Clone()
			taken := "a@x.com"
			clash.EmailAddress = &taken
			err = identities.Update(ctx, clash)
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})
	})

	Describe("confirmation and lookup", func() {
		It("finds by confirmed email and lists pending owners", func() {
			alice := createConfirmed("alice", "s3cret", "a@x.com")
			_, err := registry.Create(ctx, "bob", "hunter2", "shared@x.com")
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Create(ctx, "carol", "hunter3", "shared@x.com")
			Expect(err).NotTo(HaveOccurred())

			found, err := registry.FindByEmailAddress(ctx, "a@x.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(alice.ID))

			pending, err := registry.FindByUnconfirmedEmailAddress(ctx, "shared@x.com", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(2))

			pending, err = registry.FindByUnconfirmedEmailAddress(ctx, "shared@x.com", "carol")
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Username).To(Equal("carol"))
		})
	})

	Describe("credentials", func() {
		It("keeps exactly one password credential after replacement", func() {
			alice := createConfirmed("alice", "s3cret", "a@x.com")

			ok, err := authn.ChangePassword(ctx, "alice", "s3cret", "n3w-secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			list, err := creds.ListByIdentity(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))

			found, err := authn.FindByUsernameOrEmailAddressAndPassword(ctx, "a@x.com", "n3w-secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
		})

		It("authenticates external credentials case-insensitively by type", func() {
			alice := createConfirmed("alice", "s3cret", "a@x.com")
			cred, err := auth.NewCredential(auth.ExternalCredentialType("github"), "gho_token")
			Expect(err).NotTo(HaveOccurred())
			Expect(authn.ReplaceCredential(ctx, alice, cred)).To(Succeed())

			found, err := authn.AuthenticateCredential(ctx, "EXTERNAL.GITHUB", "gho_token")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.IdentityID).To(Equal(alice.ID))
		})
	})

	Describe("password reset", func() {
		It("issues, reuses and redeems a reset token", func() {
			createConfirmed("alice", "s3cret", "a@x.com")

			first, err := tokens.GeneratePasswordResetToken(ctx, "a@x.com", 5)
			Expect(err).NotTo(HaveOccurred())
			second, err := tokens.GeneratePasswordResetToken(ctx, "a@x.com", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(*second.PasswordResetToken).To(Equal(*first.PasswordResetToken))

			ok, err := tokens.ResetPasswordWithToken(ctx, "alice", *first.PasswordResetToken, "n3w-secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			stored, err := identities.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordResetToken).To(BeNil())
		})

		It("rejects an expired token", func() {
			createConfirmed("alice", "s3cret", "a@x.com")
			issued, err := tokens.GeneratePasswordResetToken(ctx, "a@x.com", 1)
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(2 * time.Minute)
			ok, err := tokens.ResetPasswordWithToken(ctx, "alice", *issued.PasswordResetToken, "n3w-secret")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("stale caller copies", func() {
		It("keeps a confirmation made after the copy was read", func() {
			stale, err := registry.Create(ctx, "alice", "s3cret", "a@x.com")
			Expect(err).NotTo(HaveOccurred())
			current := stale.Clone()
			ok, err := tokens.ConfirmEmailAddress(ctx, current, *current.EmailConfirmationToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			Expect(registry.UpdateProfile(ctx, stale, false)).To(Succeed())

			stored, err := identities.GetByID(ctx, stale.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Confirmed()).To(BeTrue())
			Expect(stored.EmailAllowed).To(BeFalse())
		})

		It("rejects a confirmation token replaced by an email change", func() {
			alice, err := registry.Create(ctx, "alice", "s3cret", "a@x.com")
			Expect(err).NotTo(HaveOccurred())
			stale := alice.Clone()
			Expect(registry.ChangeEmailAddress(ctx, alice, "b@x.com")).To(Succeed())

			ok, err := tokens.ConfirmEmailAddress(ctx, stale, *stale.EmailConfirmationToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			stored, err := identities.GetByID(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.EmailAddress).To(BeNil())
			Expect(*stored.UnconfirmedEmailAddress).To(Equal("b@x.com"))
		})
	})

	Describe("transactions", func() {
		It("rolls back every write when the unit of work fails", func() {
			alice := createConfirmed("alice", "s3cret", "a@x.com")
			errAbort := errors.New("abort")

			err := postgres.NewTransactor(pool).InTransaction(ctx, func(ctx context.Context) error {
				Expect(creds.Remove(ctx, alice.ID, auth.CredentialTypePasswordArgon2id)).To(Succeed())
				return errAbort
			})
			Expect(errors.Is(err, errAbort)).To(BeTrue())

			list, err := creds.ListByIdentity(ctx, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
		})
	})
})
