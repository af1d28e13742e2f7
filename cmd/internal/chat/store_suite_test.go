package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// suiteEnv provides a fresh store plus a way to mint participant ids that
// satisfy the store's referential rules.
type suiteEnv struct {
	store      Store
	newAccount func(t *testing.T) string
}

var suiteBase = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return suiteBase.Add(time.Duration(sec) * time.Second) }

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newEnv func(t *testing.T) suiteEnv) {
	t.Helper()

	send := func(t *testing.T, s Store, from, to, body string, sec int) Message {
		t.Helper()
		m, err := s.Create(testCtx(t), CreateInput{SenderID: from, ReceiverID: to, Body: body, Now: at(sec)})
		require.NoError(t, err)
		return m
	}

	t.Run("create and get", func(t *testing.T) {
		env := newEnv(t)
		a, b := env.newAccount(t), env.newAccount(t)

		m, err := env.store.Create(testCtx(t), CreateInput{SenderID: a, ReceiverID: b, Body: "  hello ", Image: "pic.webp", Now: at(0)})
		require.NoError(t, err)
		assert.Len(t, m.ID, 26)
		assert.Equal(t, "hello", m.Body)
		assert.False(t, m.Read)
		assert.True(t, m.SentAt.Equal(at(0)))

		got, err := env.store.Get(testCtx(t), m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
		assert.Equal(t, a, got.SenderID)
		assert.Equal(t, b, got.ReceiverID)
		assert.Equal(t, "pic.webp", got.Image)

		_, err = env.store.Get(testCtx(t), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create rejects bad input", func(t *testing.T) {
		env := newEnv(t)
		a, b := env.newAccount(t), env.newAccount(t)

		for _, in := range []CreateInput{
			{SenderID: a, ReceiverID: b, Body: "   "},
			{SenderID: a, ReceiverID: a, Body: "self"},
			{SenderID: "", ReceiverID: b, Body: "x"},
		} {
			_, err := env.store.Create(testCtx(t), in)
			assert.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
		}
	})

	t.Run("conversation is ordered, marks read, hides deleted", func(t *testing.T) {
		env := newEnv(t)
		a, b, c := env.newAccount(t), env.newAccount(t), env.newAccount(t)
		s := env.store

		m2 := send(t, s, b, a, "second", 2)
		m1 := send(t, s, a, b, "first", 1)
		m3 := send(t, s, b, a, "third", 3)
		gone := send(t, s, b, a, "oops", 4)
		send(t, s, c, a, "other conversation", 5)

		_, err := s.Delete(testCtx(t), gone.ID, b)
		require.NoError(t, err)

		msgs, err := s.Conversation(testCtx(t), a, b)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})

		// a read b's messages; a's own message to b stays unread.
		got, err := s.Get(testCtx(t), m2.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)
		got, err = s.Get(testCtx(t), m1.ID)
		require.NoError(t, err)
		assert.False(t, got.Read)

		msgs, err = s.Conversation(testCtx(t), b, a)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		got, err = s.Get(testCtx(t), m1.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)

		empty, err := s.Conversation(testCtx(t), b, c)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("edit", func(t *testing.T) {
		env := newEnv(t)
		a, b := env.newAccount(t), env.newAccount(t)
		s := env.store
		m := send(t, s, a, b, "draft", 0)

		edited, err := s.Edit(testCtx(t), EditInput{ID: m.ID, EditorID: a, Body: "final", Now: at(10)})
		require.NoError(t, err)
		assert.Equal(t, "final", edited.Body)
		assert.True(t, edited.EditedAt.Equal(at(10)))
		assert.True(t, edited.SentAt.Equal(at(0)))

		_, err = s.Edit(testCtx(t), EditInput{ID: m.ID, EditorID: b, Body: "hijack"})
		assert.ErrorIs(t, err, ErrForbidden)

		_, err = s.Edit(testCtx(t), EditInput{ID: m.ID, EditorID: a, Body: ""})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = s.Edit(testCtx(t), EditInput{ID: "01HZZZZZZZZZZZZZZZZZZZZZZZ", EditorID: a, Body: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete is soft and single", func(t *testing.T) {
		env := newEnv(t)
		a, b := env.newAccount(t), env.newAccount(t)
		s := env.store
		m := send(t, s, a, b, "bye", 0)

		_, err := s.Delete(testCtx(t), m.ID, b)
		assert.ErrorIs(t, err, ErrForbidden)

		deleted, err := s.Delete(testCtx(t), m.ID, a)
		require.NoError(t, err)
		assert.True(t, deleted.IsDeleted)
		assert.Equal(t, "bye", deleted.Body)

		_, err = s.Delete(testCtx(t), m.ID, a)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(testCtx(t), m.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Edit(testCtx(t), EditInput{ID: m.ID, EditorID: a, Body: "revive"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("threads newest first", func(t *testing.T) {
		env := newEnv(t)
		a, b, c, d := env.newAccount(t), env.newAccount(t), env.newAccount(t), env.newAccount(t)
		s := env.store

		send(t, s, a, b, "to b", 1)
		lastB := send(t, s, b, a, "from b", 3)
		lastC := send(t, s, a, c, "to c", 5)
		hidden := send(t, s, d, a, "from d", 7)
		send(t, s, b, c, "not mine", 9)

		_, err := s.Delete(testCtx(t), hidden.ID, d)
		require.NoError(t, err)

		threads, err := s.Threads(testCtx(t), a)
		require.NoError(t, err)
		require.Len(t, threads, 2)
		assert.Equal(t, c, threads[0].PeerID)
		assert.Equal(t, lastC.ID, threads[0].Last.ID)
		assert.Equal(t, b, threads[1].PeerID)
		assert.Equal(t, lastB.ID, threads[1].Last.ID)

		none, err := s.Threads(testCtx(t), d)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func testCtxCanceled() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx, cancel
}
