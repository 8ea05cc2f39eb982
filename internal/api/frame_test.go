package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pebblekv/internal/kv"
	"github.com/eigerco/pebblekv/pkg/db/pebble"
	"github.com/eigerco/pebblekv/pkg/network/cert"
	"github.com/eigerco/pebblekv/pkg/network/transport"
)

func TestHandleMalformedFrame(t *testing.T) {
	out, err := NewDispatcher(nil).Handle(context.Background(), []byte("{not json"))
	require.NoError(t, err)

	var resp transport.Response
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	var body map[string]string
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, StatusError, body["status"])
	assert.Contains(t, body["message"], ErrInvalidRequest.Error())
}

type quicEnv struct {
	client *transport.Client
	svc    *kv.Service
}

func startQUIC(t *testing.T) *quicEnv {
	t.Helper()
	store, err := pebble.NewKVStore()
	require.NoError(t, err)
	svc := kv.NewService(store)

	tlsCert, err := cert.NewSelfSigned(time.Hour)
	require.NoError(t, err)
	server, err := transport.NewServer(transport.Config{
		ListenAddr: "127.0.0.1:0",
		TLSCert:    tlsCert,
		Handler:    NewDispatcher(svc),
	})
	require.NoError(t, err)
	require.NoError(t, server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := tlsCert.Leaf.PublicKey.(ed25519.PublicKey)
	client, err := transport.Dial(ctx, server.Addr().String(), &cert.Validator{PinnedKey: key})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		assert.NoError(t, server.Stop())
		assert.NoError(t, svc.Close())
		assert.NoError(t, store.Close())
	})
	return &quicEnv{client: client, svc: svc}
}

func TestQUICRoundTrip(t *testing.T) {
	env := startQUIC(t)
	c := env.client
	ctx := context.Background()

	resp, err := c.Do(ctx, Request{Op: OpPut, Key: ptr("user:1"), Value: ptr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = c.Do(ctx, Request{Op: OpGet, Key: ptr("user:1")})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Code)
	var got getBody
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, getBody{Status: StatusSuccess, Key: "user:1", Value: "Alice"}, got)

	resp, err = c.Do(ctx, Request{Op: OpBatch, Operations: []BatchOperation{
		{Type: "put", Key: "user:2", Value: ptr("Bob")},
		{Type: "delete", Key: "user:1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = c.Do(ctx, Request{Op: OpSearch, Prefix: ptr("user:")})
	require.NoError(t, err)
	var scan scanBody
	require.NoError(t, resp.Decode(&scan))
	require.Equal(t, 1, scan.Count)
	assert.Equal(t, "user:2", scan.Results[0].Key)

	resp, err = c.Do(ctx, Request{Op: OpGet, Key: ptr("user:1")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestQUICMalformedRequest(t *testing.T) {
	env := startQUIC(t)

	resp, err := env.client.DoRaw(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// the connection is still usable
	resp, err = env.client.Do(context.Background(), Request{Op: OpAll})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestQUICConcurrentStreams(t *testing.T) {
	env := startQUIC(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			resp, err := env.client.Do(ctx, Request{Op: OpPut, Key: &key, Value: ptr("v")})
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.Code)
			}
		}(i)
	}
	wg.Wait()

	entries, err := env.svc.CollectAll()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
