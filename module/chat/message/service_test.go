package message

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	chatmodel "PPDirect/module/chat/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/events"
	"PPDirect/tools/errs"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type directory map[primitive.ObjectID]usermodel.Projection

func (d directory) Projections(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]usermodel.Projection, error) {
	out := make(map[primitive.ObjectID]usermodel.Projection)
	for _, id := range ids {
		if p, ok := d[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, evt)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.evs))
	for _, e := range r.evs {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	svc   *Service
	store *MemStore
	rec   *recorder
	a, b  usermodel.Projection
	c     usermodel.Projection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mk := func(name string) usermodel.Projection {
		return usermodel.Projection{ID: primitive.NewObjectID(), Username: name, DisplayName: name}
	}
	f := &fixture{store: NewMemStore(), rec: &recorder{}, a: mk("alice"), b: mk("bob"), c: mk("carol")}
	dir := directory{f.a.ID: f.a, f.b.ID: f.b, f.c.ID: f.c}
	f.svc = NewService(f.store, dir, f.rec)

	// strictly increasing clock so ordering assertions are deterministic
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	f.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return f
}

func TestSendCreatesExactlyOneConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "  hi  ")
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Body)
	require.False(t, msg.IsRead)
	require.Equal(t, chatmodel.MessageTypeText, msg.MessageType)
	require.Equal(t, f.a, msg.Sender)
	require.Equal(t, f.b, msg.Receiver)

	convs, err := f.store.ListConversations(ctx, f.a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, []primitive.ObjectID{msg.ID}, convs[0].Messages)
	require.Equal(t, msg.ID, *convs[0].LastMessage)
	require.Equal(t, msg.ConversationID, convs[0].ID)

	// the reverse direction reuses it
	_, err = f.svc.SendMessage(ctx, f.b.ID.Hex(), f.a.ID.Hex(), "hey")
	require.NoError(t, err)
	convs, err = f.store.ListConversations(ctx, f.b.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 2)
}

func TestSendAppendsAndMovesLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "one")
	require.NoError(t, err)
	before, err := f.store.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)

	const n = 5
	var last *chatmodel.Populated
	for i := 0; i < n; i++ {
		sender, receiver := f.a.ID.Hex(), f.b.ID.Hex()
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		last, err = f.svc.SendMessage(ctx, sender, receiver, "more")
		require.NoError(t, err)
	}

	after, err := f.store.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, after.Messages, len(before.Messages)+n)
	require.Equal(t, last.ID, *after.LastMessage)
	require.Equal(t, last.CreatedAt, after.LastMessageAt)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name, sender, receiver, body string
		want                         error
	}{
		{"empty body", f.a.ID.Hex(), f.b.ID.Hex(), "   \n\t", errs.ErrArgs},
		{"malformed receiver", f.a.ID.Hex(), "not-an-id", "hi", errs.ErrArgs},
		{"malformed sender", "undefined", f.b.ID.Hex(), "hi", errs.ErrArgs},
		{"self", f.a.ID.Hex(), f.a.ID.Hex(), "hi", errs.ErrArgs},
		{"unknown receiver", f.a.ID.Hex(), primitive.NewObjectID().Hex(), "hi", errs.ErrRecordNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tc.sender, tc.receiver, tc.body)
			require.ErrorIs(t, err, tc.want)
		})
	}

	convs, err := f.store.ListConversations(ctx, f.a.ID)
	require.NoError(t, err)
	require.Empty(t, convs)
	require.Empty(t, f.rec.kinds())
}

func TestSendPublishesAfterPersisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "hello")
	require.NoError(t, err)
	require.Equal(t, []string{chatmodel.EventMessageSent}, f.rec.kinds())

	sent := f.rec.evs[0].Payload.(chatmodel.MessageSent)
	require.Equal(t, msg, sent.Message)
	require.Equal(t, "bob", sent.Message.Receiver.Username)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", stored.Body)
}

type failingAppend struct {
	*MemStore
}

func (failingAppend) AppendMessage(context.Context, *chatmodel.Message) error {
	return errors.New("disk on fire")
}

func TestSendStoreFailureEmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.svc.store = failingAppend{f.store}

	_, err := f.svc.SendMessage(context.Background(), f.a.ID.Hex(), f.b.ID.Hex(), "hello")
	require.Error(t, err)
	require.Empty(t, f.rec.kinds())
}

func TestFindOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	ids := make([]primitive.ObjectID, workers)
	errList := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.a.ID, f.b.ID
			if i%2 == 0 {
				a, b = b, a
			}
			conv, err := f.svc.FindOrCreateConversation(ctx, a, b)
			errList[i] = err
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i, id := range ids {
		require.NoError(t, errList[i])
		require.Equal(t, ids[0], id)
	}
	convs, err := f.store.ListConversations(ctx, f.a.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
}

func TestFetchThreadMarksReadAfterReturning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "hi")
	require.NoError(t, err)
	require.False(t, sent.IsRead)

	// the sender's own view does not mark anything
	thread, err := f.svc.FetchThread(ctx, f.a.ID.Hex(), f.b.ID.Hex())
	require.NoError(t, err)
	require.Len(t, thread, 1)
	stored, err := f.store.GetMessage(ctx, sent.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRead)

	thread, err = f.svc.FetchThread(ctx, f.b.ID.Hex(), f.a.ID.Hex())
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.Equal(t, sent.ID, thread[0].ID)
	require.False(t, thread[0].IsRead, "response shows the state before the read-mark")
	require.Equal(t, f.a, thread[0].Sender)

	stored, err = f.store.GetMessage(ctx, sent.ID)
	require.NoError(t, err)
	require.True(t, stored.IsRead)

	// no realtime read receipt is produced by fetching
	require.Equal(t, []string{chatmodel.EventMessageSent}, f.rec.kinds())
}

func TestFetchThreadOrderAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	thread, err := f.svc.FetchThread(ctx, f.a.ID.Hex(), f.c.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, thread)
	require.Empty(t, thread)

	var want []primitive.ObjectID
	for _, body := range []string{"1", "2", "3"} {
		m, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), body)
		require.NoError(t, err)
		want = append(want, m.ID)
	}
	thread, err = f.svc.FetchThread(ctx, f.b.ID.Hex(), f.a.ID.Hex())
	require.NoError(t, err)
	got := make([]primitive.ObjectID, 0, len(thread))
	for _, m := range thread {
		got = append(got, m.ID)
	}
	require.Equal(t, want, got)

	_, err = f.svc.FetchThread(ctx, "bad", f.a.ID.Hex())
	require.ErrorIs(t, err, errs.ErrArgs)
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "to bob")
	require.NoError(t, err)
	last, err := f.svc.SendMessage(ctx, f.c.ID.Hex(), f.a.ID.Hex(), "from carol")
	require.NoError(t, err)

	sums, err := f.svc.ListConversations(ctx, f.a.ID.Hex())
	require.NoError(t, err)
	require.Len(t, sums, 2)
	require.Equal(t, f.c, sums[0].Participant)
	require.Equal(t, last.ID, sums[0].LastMessage.ID)
	require.Equal(t, "from carol", sums[0].LastMessage.Body)
	require.Equal(t, f.b, sums[1].Participant)
	require.True(t, sums[0].LastMessageAt.After(sums[1].LastMessageAt))

	sums, err = f.svc.ListConversations(ctx, primitive.NewObjectID().Hex())
	require.NoError(t, err)
	require.NotNil(t, sums)
	require.Empty(t, sums)
}

func TestListConversationsTieBreakByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return at }

	_, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "x")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.a.ID.Hex(), f.c.ID.Hex(), "y")
	require.NoError(t, err)

	first, err := f.svc.ListConversations(ctx, f.a.ID.Hex())
	require.NoError(t, err)
	second, err := f.svc.ListConversations(ctx, f.a.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, first[1].ID, second[1].ID)
	require.Greater(t, first[0].ID.Hex(), first[1].ID.Hex())
}

func TestMarkReadIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m1, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "one")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "two")
	require.NoError(t, err)
	reply, err := f.svc.SendMessage(ctx, f.b.ID.Hex(), f.a.ID.Hex(), "three")
	require.NoError(t, err)

	n, err := f.svc.MarkRead(ctx, m1.ConversationID.Hex(), f.b.ID.Hex())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	snapshot, err := f.store.ListThread(ctx, m1.ConversationID)
	require.NoError(t, err)

	n, err = f.svc.MarkRead(ctx, m1.ConversationID.Hex(), f.b.ID.Hex())
	require.NoError(t, err)
	require.Zero(t, n)
	again, err := f.store.ListThread(ctx, m1.ConversationID)
	require.NoError(t, err)
	require.Equal(t, snapshot, again)

	// bob's reply to alice is untouched
	stored, err := f.store.GetMessage(ctx, reply.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRead)
}

func TestMarkReadErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "one")
	require.NoError(t, err)

	_, err = f.svc.MarkRead(ctx, primitive.NewObjectID().Hex(), f.b.ID.Hex())
	require.ErrorIs(t, err, errs.ErrRecordNotFound)
	_, err = f.svc.MarkRead(ctx, m.ConversationID.Hex(), f.c.ID.Hex())
	require.ErrorIs(t, err, errs.ErrNoPermission)
	_, err = f.svc.MarkRead(ctx, "nope", f.b.ID.Hex())
	require.ErrorIs(t, err, errs.ErrArgs)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "keep")
	require.NoError(t, err)
	gone, err := f.svc.SendMessage(ctx, f.a.ID.Hex(), f.b.ID.Hex(), "oops")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteMessage(ctx, gone.ID.Hex(), f.b.ID.Hex()), errs.ErrNoPermission)
	require.ErrorIs(t, f.svc.DeleteMessage(ctx, primitive.NewObjectID().Hex(), f.a.ID.Hex()), errs.ErrRecordNotFound)

	require.NoError(t, f.svc.DeleteMessage(ctx, gone.ID.Hex(), f.a.ID.Hex()))

	_, err = f.store.GetMessage(ctx, gone.ID)
	require.ErrorIs(t, err, errs.ErrRecordNotFound)
	conv, err := f.store.GetConversation(ctx, gone.ConversationID)
	require.NoError(t, err)
	require.Equal(t, []primitive.ObjectID{keep.ID}, conv.Messages)
	require.Equal(t, keep.ID, *conv.LastMessage)

	for _, viewer := range []usermodel.Projection{f.a, f.b} {
		other := f.b
		if viewer == f.b {
			other = f.a
		}
		thread, err := f.svc.FetchThread(ctx, viewer.ID.Hex(), other.ID.Hex())
		require.NoError(t, err)
		for _, m := range thread {
			require.NotEqual(t, gone.ID, m.ID)
		}
	}

	require.ErrorIs(t, f.svc.DeleteMessage(ctx, gone.ID.Hex(), f.a.ID.Hex()), errs.ErrRecordNotFound)
	require.Equal(t, chatmodel.EventMessageDeleted, f.rec.kinds()[len(f.rec.kinds())-1])

	require.NoError(t, f.svc.DeleteMessage(ctx, keep.ID.Hex(), f.a.ID.Hex()))
	conv, err = f.store.GetConversation(ctx, keep.ConversationID)
	require.NoError(t, err)
	require.Empty(t, conv.Messages)
	require.Nil(t, conv.LastMessage)

	sums, err := f.svc.ListConversations(ctx, f.a.ID.Hex())
	require.NoError(t, err)
	require.Len(t, sums, 1)
	require.Nil(t, sums[0].LastMessage)
}
