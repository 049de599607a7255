// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"encoding/json"
	"testing"

	"github.com/mochi-mqtt/fixeddata/credentials"
	"github.com/mochi-mqtt/fixeddata/storage"

	"github.com/stretchr/testify/require"
)

func register(t *testing.T, s *Server, clientID string) credentials.Login {
	t.Helper()
	tr := s.Options.Transport.(interface {
		PublishedTo(topic string) [][]byte
		Inject(topic string, payload []byte)
	})

	before := len(tr.PublishedTo("t/" + clientID + "/register"))
	tr.Inject("f/"+clientID+"/register", nil)
	s.Workers.Wait()

	replies := tr.PublishedTo("t/" + clientID + "/register")
	require.Len(t, replies, before+1)

	var login credentials.Login
	require.NoError(t, json.Unmarshal(replies[before], &login))
	return login
}

func TestRegister(t *testing.T) {
	s, _ := newServer()
	r := newRecordingHook()
	require.NoError(t, s.AddHook(r, nil))
	serve(t, s)

	login := register(t, s, "client-abc")
	require.Len(t, login.Username, 8)
	require.Len(t, login.Password, 32)
	require.Len(t, login.Random, 96)

	cl, err := s.store.Client(login.Username)
	require.NoError(t, err)
	require.Equal(t, "client-abc", cl.ClientID)
	require.Equal(t, storage.RoleSensor, cl.Role)
	require.False(t, cl.Verified)
	require.NotEqual(t, login.Password, cl.Password)

	ok, err := credentials.Verify(login.Password, cl.Password)
	require.NoError(t, err)
	require.True(t, ok)

	require.Contains(t, r.Events(), "register:client-abc")
}

func TestRegisterInvalidPrefix(t *testing.T) {
	s, tr := newServer()
	serve(t, s)

	inject(s, tr, "device-abc", PathRegister, nil)
	require.Equal(t, [][]byte{[]byte(`{"error":"invalid request"}`)}, tr.PublishedTo("t/device-abc/register"))

	clients, err := s.Clients()
	require.NoError(t, err)
	require.Len(t, clients, 1) // the server itself
}

func TestRegisterAlreadyVerified(t *testing.T) {
	s, tr := newServer()
	serve(t, s)

	login := register(t, s, "client-abc")
	inject(s, tr, login.Username, PathVerify, nil)

	inject(s, tr, "client-abc", PathRegister, nil)
	replies := tr.PublishedTo("t/client-abc/register")
	require.Len(t, replies, 2)
	require.Equal(t, []byte(`{"error":"already registered"}`), replies[1])

	_, err := s.store.Client(login.Username)
	require.NoError(t, err)
}

func TestRegisterUnverifiedReplaced(t *testing.T) {
	s, _ := newServer()
	serve(t, s)

	first := register(t, s, "client-abc")
	second := register(t, s, "client-abc")
	require.NotEqual(t, first.Username, second.Username)

	_, err := s.store.Client(first.Username)
	require.True(t, storage.IsNotFound(err))

	cl, err := s.store.ClientByID("client-abc")
	require.NoError(t, err)
	require.Equal(t, second.Username, cl.Username)
}

func TestRegisterUsernameTaken(t *testing.T) {
	s, tr := newServer()
	serve(t, s)

	existing := storage.Client{Username: "abcd1234", ClientID: "client-old", Password: "hash", Role: storage.RoleSensor}
	require.NoError(t, s.store.InsertClient(existing))

	var attempts int
	generateLogin = func() (credentials.Login, error) {
		attempts++
		return credentials.Login{Username: "abcd1234", Password: "secret", Random: "r"}, nil
	}
	t.Cleanup(func() {
		generateLogin = credentials.NewLogin
	})

	inject(s, tr, "client-new", PathRegister, nil)
	require.Equal(t, usernameAttempts, attempts)
	require.Equal(t, [][]byte{[]byte(`{"error":"internal error"}`)}, tr.PublishedTo("t/client-new/register"))

	cl, err := s.store.Client("abcd1234")
	require.NoError(t, err)
	require.Equal(t, "client-old", cl.ClientID)
	require.Equal(t, "hash", cl.Password)

	_, err = s.store.ClientByID("client-new")
	require.True(t, storage.IsNotFound(err))
}

func TestRegisterUsernameRetried(t *testing.T) {
	s, _ := newServer()
	serve(t, s)

	require.NoError(t, s.store.InsertClient(storage.Client{Username: "abcd1234", ClientID: "client-old"}))

	names := []string{"abcd1234", "ef015678"}
	generateLogin = func() (credentials.Login, error) {
		name := names[0]
		names = names[1:]
		return credentials.Login{Username: name, Password: "secret", Random: "r"}, nil
	}
	t.Cleanup(func() {
		generateLogin = credentials.NewLogin
	})

	login := register(t, s, "client-new")
	require.Equal(t, "ef015678", login.Username)

	cl, err := s.store.Client("abcd1234")
	require.NoError(t, err)
	require.Equal(t, "client-old", cl.ClientID)
}

func TestVerify(t *testing.T) {
	s, tr := newServer()
	r := newRecordingHook()
	require.NoError(t, s.AddHook(r, nil))
	serve(t, s)

	login := register(t, s, "client-abc")
	inject(s, tr, login.Username, PathVerify, []byte("anything"))

	replies := tr.PublishedTo("t/" + login.Username + "/verify")
	require.Len(t, replies, 1)
	require.Empty(t, replies[0])

	cl, err := s.store.Client(login.Username)
	require.NoError(t, err)
	require.True(t, cl.Verified)
	require.Contains(t, r.Events(), "verify:client-abc")

	// verifying again is harmless
	inject(s, tr, login.Username, PathVerify, nil)
	require.Len(t, tr.PublishedTo("t/"+login.Username+"/verify"), 2)
}

func TestVerifyUnknownClient(t *testing.T) {
	s, tr := newServer()
	r := newRecordingHook()
	require.NoError(t, s.AddHook(r, nil))
	serve(t, s)

	inject(s, tr, "deadbeef", PathVerify, nil)
	require.Empty(t, tr.PublishedTo("t/deadbeef/verify"))
	require.NotContains(t, r.Events(), "verify:")
}
