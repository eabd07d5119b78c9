package msgpack_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-es/kestrel"
	"github.com/kestrel-es/kestrel/adapters/memory"
	"github.com/kestrel-es/kestrel/serializer/msgpack"
	"github.com/kestrel-es/kestrel/testing/testutil"
)

type complexEvent struct {
	kestrel.EventBase
	Tags   []string          `msgpack:"tags"`
	Labels map[string]string `msgpack:"labels"`
	Nested *nestedData       `msgpack:"nested"`
}

type nestedData struct {
	Value int    `msgpack:"value"`
	Name  string `msgpack:"name"`
}

func TestSerializer_Register(t *testing.T) {
	t.Run("register all uses struct names", func(t *testing.T) {
		s := msgpack.NewSerializer()
		s.RegisterAll(testutil.AccountEvents()...)

		assert.Equal(t, 4, s.Registry().Count())
		_, ok := s.Registry().Lookup("Deposited")
		assert.True(t, ok)
	})

	t.Run("pointer and value register the same type", func(t *testing.T) {
		s := msgpack.NewSerializer()
		s.Register("A", testutil.Deposited{})
		s.Register("B", &testutil.Deposited{})

		a, _ := s.Registry().Lookup("A")
		b, _ := s.Registry().Lookup("B")
		assert.Equal(t, a, b)
	})

	t.Run("shared registry", func(t *testing.T) {
		registry := kestrel.NewEventRegistry()
		registry.RegisterAll(testutil.Deposited{})

		s := msgpack.NewSerializer(msgpack.WithRegistry(registry))

		assert.Same(t, registry, s.Registry())
	})
}

func TestSerializer_RoundTrip(t *testing.T) {
	s := msgpack.NewSerializer()
	s.RegisterAll(complexEvent{}, testutil.Deposited{})

	t.Run("registered type comes back as pointer", func(t *testing.T) {
		data, err := s.Serialize(&testutil.Deposited{Amount: 42})
		require.NoError(t, err)

		out, err := s.Deserialize(data, "Deposited")
		require.NoError(t, err)

		event, ok := out.(*testutil.Deposited)
		require.True(t, ok)
		assert.Equal(t, int64(42), event.Amount)
	})

	t.Run("nested values", func(t *testing.T) {
		in := &complexEvent{
			Tags:   []string{"a", "b"},
			Labels: map[string]string{"k": "v"},
			Nested: &nestedData{Value: 7, Name: "seven"},
		}

		data, err := s.Serialize(in)
		require.NoError(t, err)
		out, err := s.Deserialize(data, "complexEvent")
		require.NoError(t, err)

		got := out.(*complexEvent)
		assert.Equal(t, in.Tags, got.Tags)
		assert.Equal(t, in.Labels, got.Labels)
		assert.Equal(t, *in.Nested, *got.Nested)
	})

	t.Run("unregistered type decodes to a map", func(t *testing.T) {
		data, err := s.Serialize(&testutil.Withdrawn{Amount: 5})
		require.NoError(t, err)

		out, err := s.Deserialize(data, "Withdrawn")
		require.NoError(t, err)

		m, ok := out.(map[string]interface{})
		require.True(t, ok)
		assert.Contains(t, m, "amount")
	})
}

func TestSerializer_Errors(t *testing.T) {
	s := msgpack.NewSerializer()

	_, err := s.Serialize(nil)
	assert.ErrorIs(t, err, kestrel.ErrSerializationFailed)

	_, err = s.Deserialize(nil, "Deposited")
	assert.ErrorIs(t, err, kestrel.ErrSerializationFailed)

	s.RegisterAll(testutil.Deposited{})
	_, err = s.Deserialize([]byte{0xc1}, "Deposited")
	assert.ErrorIs(t, err, kestrel.ErrSerializationFailed)

	var serErr *kestrel.SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, "deserialize", serErr.Operation)
}

func TestSerializer_WithEventStore(t *testing.T) {
	ctx := context.Background()
	store := kestrel.New(memory.NewAdapter(), kestrel.WithSerializer(msgpack.NewSerializer()))
	testutil.RegisterTestEvents(store)
	repo := testutil.NewAccountRepository(store)

	acc := repo.New()
	session := store.NewSession()
	require.NoError(t, acc.OpenAccount(session, "ada"))
	require.NoError(t, acc.Deposit(session, 100))
	require.NoError(t, acc.Withdraw(session, 40))
	require.NoError(t, session.Commit(ctx))

	loaded, err := repo.Get(ctx, acc.ID())
	require.NoError(t, err)
	assert.Equal(t, "ada", loaded.Owner)
	assert.Equal(t, int64(60), loaded.Balance)
	assert.Equal(t, int64(3), loaded.Version())
}
