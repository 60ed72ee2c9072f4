package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/auth"
	"github.com/hearth-cms/hearth/internal/credential"
)

type fakeJobs struct {
	purged []string
	closed bool
}

func (f *fakeJobs) Purge(_ context.Context, refs []string) error {
	f.purged = append(f.purged, refs...)
	return nil
}

func (f *fakeJobs) InspectQueue() (QueueStats, error) {
	return QueueStats{Queue: "default", Pending: 3}, nil
}

func (f *fakeJobs) Close() error {
	f.closed = true
	return nil
}

func testDeps(repo *auth.MemoryRepository, queue *fakeJobs) deps {
	return deps{
		promoter: func(context.Context, string) (promoter, func(), error) {
			return auth.NewService(repo, credential.NewVerifier(credential.MinCost), nil), func() {}, nil
		},
		jobs: func(string) jobsBackend { return queue },
	}
}

func TestHashCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp(testDeps(nil, nil), strings.NewReader("s3cret-pass\n"), &out)
	require.NoError(t, app.Run([]string{"hearthctl", "hash"}))

	ok, err := credential.NewVerifier(credential.MinCost).Verify("s3cret-pass", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPromoteCommand(t *testing.T) {
	repo := auth.NewMemoryRepository()
	svc := auth.NewService(repo, credential.NewVerifier(credential.MinCost), nil)
	_, err := svc.Signup(context.Background(), auth.SignupInput{
		Email: "ops@example.com", Password: "passw0rd1", PasswordConfirm: "passw0rd1", Name: "ops",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	run := func(args ...string) error {
		return newApp(testDeps(repo, nil), strings.NewReader(""), &out).Run(append([]string{"hearthctl"}, args...))
	}
	require.NoError(t, run("promote", "ops@example.com"))
	assert.Contains(t, out.String(), "ops@example.com is now admin")

	user, err := repo.FindByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, user.Role)

	assert.Error(t, run("promote", "--role", "root", "ops@example.com"))
	assert.Error(t, run("promote"))
	assert.Error(t, run("promote", "ghost@example.com"))
}

func TestJobsCommands(t *testing.T) {
	queue := &fakeJobs{}
	var out bytes.Buffer
	run := func(args ...string) error {
		return newApp(testDeps(nil, queue), strings.NewReader(""), &out).Run(append([]string{"hearthctl"}, args...))
	}

	require.NoError(t, run("jobs", "purge", "uploads/a.jpg", "b.png"))
	assert.Equal(t, []string{"uploads/a.jpg", "b.png"}, queue.purged)
	assert.True(t, queue.closed)

	out.Reset()
	require.NoError(t, run("jobs", "stats"))
	assert.Contains(t, out.String(), "pending=3")
}
