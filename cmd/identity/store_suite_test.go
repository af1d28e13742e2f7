package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("create and read back", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		acc, err := s.CreateAccount(ctx, CreateAccountInput{
			Email:        " Alice@Example.com ",
			Username:     "Alice",
			PasswordHash: "$2a$04$hash",
			Interests:    []string{"music", " Music ", "", "coding"},
			Now:          now,
		})
		require.NoError(t, err)
		assert.Len(t, acc.ID, 26)
		assert.Equal(t, "Alice@Example.com", acc.Email)
		assert.Equal(t, "Alice", acc.Username)
		assert.Equal(t, []string{"music", "coding"}, acc.Interests)
		assert.True(t, acc.CreatedAt.Equal(now))

		got, err := s.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)
		assert.Equal(t, acc.Interests, got.Interests)

		ok, err := s.Exists(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Exists(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lookup by email or username", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		acc, err := s.CreateAccount(ctx, CreateAccountInput{
			Email: "bob@example.com", Username: "bob_b", PasswordHash: "h1",
		})
		require.NoError(t, err)

		for _, ident := range []string{"bob@example.com", "BOB@EXAMPLE.COM", "bob_b", " Bob_B "} {
			auth, err := s.GetAuthByIdentifier(ctx, ident)
			require.NoError(t, err, ident)
			assert.Equal(t, acc.ID, auth.Account.ID)
			assert.Equal(t, "h1", auth.PasswordHash)
		}

		_, err = s.GetAuthByIdentifier(ctx, "nobody")
		assert.True(t, IsNotFound(err), "got %v", err)

		_, err = s.GetAuthByIdentifier(ctx, "  ")
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("conflicts are case-insensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		_, err := s.CreateAccount(ctx, CreateAccountInput{Email: "c@example.com", Username: "carol", PasswordHash: "h"})
		require.NoError(t, err)

		_, err = s.CreateAccount(ctx, CreateAccountInput{Email: "C@EXAMPLE.com", Username: "carol2", PasswordHash: "h"})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
		assert.Equal(t, "email", ConflictField(err))

		_, err = s.CreateAccount(ctx, CreateAccountInput{Email: "c2@example.com", Username: "CAROL", PasswordHash: "h"})
		require.Error(t, err)
		assert.Equal(t, "username", ConflictField(err))
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		cases := []CreateAccountInput{
			{Email: "no-at-sign", Username: "dave", PasswordHash: "h"},
			{Email: "d@example.com", Username: "d", PasswordHash: "h"},
			{Email: "d@example.com", Username: "has@sign", PasswordHash: "h"},
			{Email: "d@example.com", Username: "dave", PasswordHash: ""},
		}
		for _, in := range cases {
			_, err := s.CreateAccount(ctx, in)
			assert.True(t, IsInvalidInput(err), "input %+v: got %v", in, err)
		}
	})

	t.Run("touch last active", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		acc, err := s.CreateAccount(ctx, CreateAccountInput{
			Email: "e@example.com", Username: "erin", PasswordHash: "h",
			Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		at := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)
		require.NoError(t, s.TouchLastActive(ctx, acc.ID, at))

		got, err := s.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, got.LastActive.Equal(at), "last_active=%v", got.LastActive)

		err = s.TouchLastActive(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", at)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("profile create then update", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		acc, err := s.CreateAccount(ctx, CreateAccountInput{Email: "f@example.com", Username: "frank", PasswordHash: "h"})
		require.NoError(t, err)
		assert.Nil(t, acc.Profile)

		now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
		in := ProfileInput{
			DisplayName: " Frank ",
			Gender:      GenderMale,
			Birthday:    time.Date(1990, 12, 22, 0, 0, 0, 0, time.UTC),
			Height:      180,
			Weight:      75.5,
			ImageURL:    "https://cdn.example.com/frank.png",
			Now:         now,
		}

		_, err = s.UpsertProfile(ctx, acc.ID, in, ProfileUpdate)
		assertNotFoundResource(t, err, "profile")

		p, err := s.UpsertProfile(ctx, acc.ID, in, ProfileCreate)
		require.NoError(t, err)
		assert.Equal(t, "Frank", p.DisplayName)
		assert.Equal(t, Capricorn, p.Horoscope)
		assert.Equal(t, Dog, p.Zodiac)
		assert.True(t, p.UpdatedAt.Equal(now))

		_, err = s.UpsertProfile(ctx, acc.ID, in, ProfileCreate)
		assert.True(t, IsConflict(err), "got %v", err)
		assert.Equal(t, "profile", ConflictField(err))

		in.Birthday = time.Date(1996, 1, 19, 0, 0, 0, 0, time.UTC)
		in.ImageURL = ""
		in.Weight = 74
		p, err = s.UpsertProfile(ctx, acc.ID, in, ProfileUpdate)
		require.NoError(t, err)
		assert.Equal(t, Capricorn, p.Horoscope)
		assert.Equal(t, Dragon, p.Zodiac)
		assert.Equal(t, 74.0, p.Weight)
		assert.Equal(t, "https://cdn.example.com/frank.png", p.ImageURL)

		got, err := s.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Profile)
		assert.Equal(t, p.DisplayName, got.Profile.DisplayName)
		assert.Equal(t, GenderMale, got.Profile.Gender)
		assert.True(t, got.Profile.Birthday.Equal(in.Birthday))
		assert.Equal(t, p.ImageURL, got.Profile.ImageURL)

		_, err = s.UpsertProfile(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", in, ProfileCreate)
		assertNotFoundResource(t, err, "account")

		in.Gender = "Other"
		_, err = s.UpsertProfile(ctx, acc.ID, in, ProfileUpdate)
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})

	t.Run("update interests", func(t *testing.T) {
		s := newStore(t)
		ctx := testCtx(t)

		acc, err := s.CreateAccount(ctx, CreateAccountInput{
			Email: "g@example.com", Username: "grace", PasswordHash: "h", Interests: []string{"chess"},
		})
		require.NoError(t, err)

		got, err := s.UpdateInterests(ctx, acc.ID, []string{"Go", " go ", "", "climbing"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Go", "climbing"}, got)

		back, err := s.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, got, back.Interests)

		_, err = s.UpdateInterests(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", []string{"x"})
		assert.True(t, IsNotFound(err), "got %v", err)

		_, err = s.UpdateInterests(ctx, acc.ID, make([]string, MaxInterests+1))
		assert.True(t, IsInvalidInput(err), "got %v", err)
	})
}

func assertNotFoundResource(t *testing.T, err error, resource string) {
	t.Helper()
	var nf NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, resource, nf.Resource)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func uniqueSuffix(t *testing.T) string {
	t.Helper()
	id, err := NewULID(time.Now().UTC())
	require.NoError(t, err)
	return strings.ToLower(id)
}
