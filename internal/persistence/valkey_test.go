package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

// newMockValkeyStore returns a ValkeyStore over a mock client that keeps
// GET and SET values in memory.
func newMockValkeyStore(t *testing.T) *ValkeyStore {
	t.Helper()
	client := mock.NewClient(gomock.NewController(t))
	var (
		mu   sync.Mutex
		data = make(map[string]string)
	)
	client.EXPECT().Do(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cmd valkey.Completed) valkey.ValkeyResult {
		mu.Lock()
		defer mu.Unlock()
		args := cmd.Commands()
		switch args[0] {
		case "SET":
			data[args[1]] = args[2]
			return mock.Result(mock.ValkeyString("OK"))
		case "GET":
			v, ok := data[args[1]]
			if !ok {
				return mock.Result(mock.ValkeyNil())
			}
			return mock.Result(mock.ValkeyString(v))
		}
		t.Fatalf("unexpected command %v", args)
		return valkey.ValkeyResult{}
	}).AnyTimes()
	return &ValkeyStore{client: client, key: ValkeyConfig{}.SnapshotKey()}
}

func TestValkeyStore_RoundTrip(t *testing.T) {
	roundTrip(t, newMockValkeyStore(t))
}

func TestValkeyStore_Errors(t *testing.T) {
	ctx := context.Background()
	client := mock.NewClient(gomock.NewController(t))
	store := &ValkeyStore{client: client, key: "prod:context"}

	client.EXPECT().Do(ctx, gomock.Any()).Return(mock.ErrorResult(errors.New("READONLY replica")))
	err := store.Save(ctx, populated(t).Snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set snapshot")

	client.EXPECT().Do(ctx, mock.Match("GET", "prod:context")).Return(mock.Result(mock.ValkeyString("{not json")))
	_, found, err := store.Load(ctx)
	require.Error(t, err)
	assert.False(t, found)
}
