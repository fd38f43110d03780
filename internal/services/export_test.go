package services_test

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/types"
)

type memoryObjects struct {
	ensured     bool
	objects     map[string][]byte
	contentType string
	putErr      error
	size        int64
}

func (m *memoryObjects) EnsureBucket(context.Context) error {
	m.ensured = true
	return nil
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	m.contentType = contentType
	m.size = size
	return nil
}

func (m *memoryObjects) Bucket() string { return "exports-bucket" }

func decodeLines(t *testing.T, data []byte) []types.User {
	t.Helper()
	var users []types.User
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var u types.User
		require.NoError(t, json.Unmarshal(sc.Bytes(), &u))
		users = append(users, u)
	}
	require.NoError(t, sc.Err())
	return users
}

func TestExportWritesEveryUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const n = services.MaxPageSize + 5
	for i := range n {
		_, err := f.svc.Create(ctx, input(fmt.Sprintf("user%03d", i)))
		require.NoError(t, err)
	}

	objects := &memoryObjects{}
	exporter := services.NewExportService(f.svc, objects, "/exports/")

	result, err := exporter.Export(ctx)
	require.NoError(t, err)

	assert.True(t, objects.ensured)
	assert.Equal(t, n, result.Count)
	assert.Equal(t, "exports-bucket", result.Bucket)
	assert.Regexp(t, `^exports/users-\d{8}T\d{6}Z\.jsonl$`, result.Key)
	assert.Equal(t, "application/x-ndjson", objects.contentType)
	assert.EqualValues(t, -1, objects.size, "snapshot is streamed with unknown length")

	users := decodeLines(t, objects.objects[result.Key])
	require.Len(t, users, n)
	assert.Equal(t, "user000", users[0].Username)
	assert.Equal(t, fmt.Sprintf("user%03d", n-1), users[n-1].Username)
}

func TestExportEmptyStore(t *testing.T) {
	f := newFixture()
	objects := &memoryObjects{}

	result, err := services.NewExportService(f.svc, objects, "").Export(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Count)
	assert.Regexp(t, `^users-.*\.jsonl$`, result.Key)
	assert.Empty(t, objects.objects[result.Key])
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	f.repo.fail = errors.New("db down")
	_, err := services.NewExportService(f.svc, &memoryObjects{}, "x").Export(ctx)
	require.ErrorIs(t, err, services.ErrStorage)

	boom := errors.New("bucket gone")
	_, err = services.NewExportService(newFixture().svc, &memoryObjects{putErr: boom}, "x").Export(ctx)
	require.ErrorIs(t, err, boom)
}

func TestExportReadsOneSnapshot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := range services.MaxPageSize*2 + 1 {
		_, err := f.svc.Create(ctx, input(fmt.Sprintf("user%03d", i)))
		require.NoError(t, err)
	}
	f.tx.opts = nil

	_, err := services.NewExportService(f.svc, &memoryObjects{}, "x").Export(ctx)
	require.NoError(t, err)

	require.Len(t, f.tx.opts, 1, "all pages come from one transaction")
	require.NotNil(t, f.tx.opts[0])
	assert.Equal(t, sql.LevelRepeatableRead, f.tx.opts[0].Isolation)
	assert.True(t, f.tx.opts[0].ReadOnly)
}

func TestWalkStopsOnCallbackError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := f.svc.Create(ctx, input(name))
		require.NoError(t, err)
	}

	stop := errors.New("stop")
	var seen []string
	err := f.svc.Walk(ctx, 2, func(u types.User) error {
		seen = append(seen, u.Username)
		if len(seen) == 2 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.NotErrorIs(t, err, services.ErrStorage)
	assert.Equal(t, []string{"alice", "bob"}, seen)
}
