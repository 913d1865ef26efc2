package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"buddywalk/internal/client"
	"buddywalk/internal/conversation"
	"buddywalk/internal/database"
	"buddywalk/internal/engine"
	"buddywalk/internal/handlers"
	"buddywalk/internal/middleware"
	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T) *httptest.Server {
	system := actor.NewActorSystem()
	metrics := utils.NewMetricsCollector()
	clock := conversation.NewStepClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Second)
	eng := engine.NewEngine(system, database.NewMemoryDB(), clock, metrics, time.Second)
	server := handlers.NewServer(system, eng, metrics, middleware.NewTokenIssuer("cli-test", time.Hour), 5*time.Second)
	ts := httptest.NewServer(handlers.NewRouter(server, nil, false))
	t.Cleanup(func() {
		ts.Close()
		system.Shutdown()
	})
	return ts
}

type cli struct {
	t        *testing.T
	server   string
	keystore string
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", c.server, "--keystore", c.keystore}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) register(name, gender string) string {
	out, err := c.run("register", "--name", name, "--dog", "Rex", "--email", name+"@example.com", "--gender", gender, "--password", "pw-"+name)
	require.NoError(c.t, err, out)
	fields := strings.Fields(out)
	return fields[len(fields)-1]
}

func TestCLIConversation(t *testing.T) {
	ts := startEngine(t)
	dir := t.TempDir()
	alice := &cli{t: t, server: ts.URL, keystore: filepath.Join(dir, "alice.db")}
	bob := &cli{t: t, server: ts.URL, keystore: filepath.Join(dir, "bob.db")}

	aliceID := alice.register("alice", "female")
	bobID := bob.register("bob", "male")

	out, err := alice.run("send", bobID, "walk", "at", "six?")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(encrypted)")

	out, err = bob.run("unread")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = bob.run("inbox")
	require.NoError(t, err)
	assert.Contains(t, out, "●")
	assert.Contains(t, out, "walk at six?")

	out, err = bob.run("read", aliceID)
	require.NoError(t, err)
	assert.Contains(t, out, "== Rex (alice) ==")
	assert.Contains(t, out, "them walk at six?")

	out, err = bob.run("unread")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)

	_, err = bob.run("block", aliceID)
	require.NoError(t, err)
	_, err = alice.run("send", bobID, "hello?")
	assert.True(t, client.HasCode(err, utils.ErrReceiverUnreachable), "got %v", err)

	_, err = bob.run("logout")
	require.NoError(t, err)
	_, err = bob.run("inbox")
	assert.ErrorIs(t, err, client.ErrNotLoggedIn)

	out, err = bob.run("login", "--email", "bob@example.com", "--password", "pw-bob")
	require.NoError(t, err)
	assert.Contains(t, out, bobID)
}

func TestReadPasswordFromInput(t *testing.T) {
	t.Setenv("BUDDYCHAT_PASSWORD", "")
	var prompt bytes.Buffer
	pw, err := readPassword(&Config{}, strings.NewReader("s3cret\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Password: ", prompt.String())

	pw, err = readPassword(&Config{Password: "flag"}, strings.NewReader(""), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "flag", pw)
}
