package openstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gammadia/herd/pool"
	th "github.com/gophercloud/gophercloud/testhelper"
	fake "github.com/gophercloud/gophercloud/testhelper/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var silentLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var filter = pool.Filter{Image: "image-1", Class: "flavor-1"}

const serverList = `
{
  "servers": [
    {
      "id": "server-2",
      "name": "herd-b",
      "status": "ACTIVE",
      "created": "2024-05-02T10:00:00Z",
      "image": {"id": "image-1"},
      "flavor": {"id": "flavor-1"},
      "addresses": {
        "private": [
          {"addr": "fd00::2", "version": 6},
          {"addr": "10.0.0.2", "version": 4}
        ]
      },
      "metadata": {"herd-pool": "flavor-1"}
    },
    {
      "id": "server-1",
      "name": "herd-a",
      "status": "ACTIVE",
      "created": "2024-05-01T10:00:00Z",
      "image": {"id": "image-1"},
      "flavor": {"id": "flavor-1"},
      "addresses": {"private": [{"addr": "10.0.0.1", "version": 4}]},
      "metadata": {}
    },
    {
      "id": "server-3",
      "name": "foreign",
      "status": "ACTIVE",
      "created": "2024-05-01T10:00:00Z",
      "image": {"id": "image-2"},
      "flavor": {"id": "flavor-1"},
      "addresses": {},
      "metadata": {}
    }
  ]
}`

func TestListMatching(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/servers/detail", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "GET")
		th.TestHeader(t, r, "X-Auth-Token", fake.TokenID)
		assert.Equal(t, "image-1", r.URL.Query().Get("image"))
		assert.Equal(t, "flavor-1", r.URL.Query().Get("flavor"))
		assert.Equal(t, "ACTIVE", r.URL.Query().Get("status"))

		w.Header().Add("Content-Type", "application/json")
		fmt.Fprint(w, serverList)
	})

	provider := NewProviderWithClient(fake.ServiceClient(), Config{Logger: silentLogger})
	nodes, err := provider.ListMatching(context.Background(), filter)
	require.NoError(t, err)

	require.Len(t, nodes, 2, "servers of another image are filtered out")
	assert.Equal(t, pool.Node{
		ID:         "server-2",
		Name:       "herd-b",
		Address:    "10.0.0.2",
		Image:      "image-1",
		Class:      "flavor-1",
		State:      pool.NodeStateRunning,
		LaunchedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}, nodes[0])
	assert.Equal(t, "10.0.0.1", nodes[1].Address)
}

func TestCreate(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	var mu sync.Mutex
	var requests []map[string]any
	th.Mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, "POST")

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		requests = append(requests, body)
		id := len(requests)
		mu.Unlock()

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"server": {"id": "server-%d"}}`, id)
	})

	provider := NewProviderWithClient(fake.ServiceClient(), Config{Logger: silentLogger})
	err := provider.Create(context.Background(), 2, pool.CreateSpec{
		Image:          "image-1",
		Class:          "flavor-1",
		KeyName:        "herd",
		Networks:       []string{"net-1"},
		SecurityGroups: []string{"ssh"},
		Metadata:       map[string]string{"owner": "ci"},
	})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	server := requests[0]["server"].(map[string]any)
	assert.Equal(t, "image-1", server["imageRef"])
	assert.Equal(t, "flavor-1", server["flavorRef"])
	assert.Equal(t, "herd", server["key_name"])
	assert.Regexp(t, "^herd-", server["name"])
	assert.Equal(t, []any{map[string]any{"uuid": "net-1"}}, server["networks"])
	assert.Equal(t, []any{map[string]any{"name": "ssh"}}, server["security_groups"])

	metadata := server["metadata"].(map[string]any)
	assert.Equal(t, "ci", metadata["owner"])
	assert.Equal(t, "flavor-1", metadata[MetadataPool])
	assert.NotEmpty(t, metadata[MetadataProvisionedAt])
}

func TestCreateFailure(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"forbidden": {"message": "Quota exceeded for instances", "code": 403}}`)
	})

	provider := NewProviderWithClient(fake.ServiceClient(), Config{Logger: silentLogger})
	err := provider.Create(context.Background(), 1, pool.CreateSpec{Image: "image-1", Class: "flavor-1"})
	assert.ErrorContains(t, err, "failed to create server")
}

func TestStopAndTerminate(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	var stopped, deleted []string
	for _, id := range []string{"server-1", "server-2"} {
		th.Mux.HandleFunc("/servers/"+id+"/action", func(w http.ResponseWriter, r *http.Request) {
			th.TestMethod(t, r, "POST")
			th.TestJSONRequest(t, r, `{"os-stop": null}`)
			stopped = append(stopped, id)
			w.WriteHeader(http.StatusAccepted)
		})
		th.Mux.HandleFunc("/servers/"+id, func(w http.ResponseWriter, r *http.Request) {
			th.TestMethod(t, r, "DELETE")
			deleted = append(deleted, id)
			w.WriteHeader(http.StatusNoContent)
		})
	}

	provider := NewProviderWithClient(fake.ServiceClient(), Config{Logger: silentLogger})
	require.NoError(t, provider.Stop(context.Background(), []string{"server-1", "server-2"}))
	require.NoError(t, provider.Terminate(context.Background(), []string{"server-2"}))

	assert.Equal(t, []string{"server-1", "server-2"}, stopped)
	assert.Equal(t, []string{"server-2"}, deleted)
}

func TestTerminateReportsEveryFailure(t *testing.T) {
	th.SetupHTTP()
	defer th.TeardownHTTP()

	th.Mux.HandleFunc("/servers/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	provider := NewProviderWithClient(fake.ServiceClient(), Config{Logger: silentLogger})
	err := provider.Terminate(context.Background(), []string{"server-1", "server-2"})
	assert.ErrorContains(t, err, "server-1")
	assert.ErrorContains(t, err, "server-2")
}

func TestIPv4Address(t *testing.T) {
	assert.Equal(t, "192.168.0.5", ipv4Address(map[string]any{
		"b-net": []any{map[string]any{"addr": "10.0.0.9", "version": float64(4)}},
		"a-net": []any{map[string]any{"addr": "192.168.0.5", "version": float64(4)}},
	}))
	assert.Empty(t, ipv4Address(map[string]any{
		"private": []any{map[string]any{"addr": "fd00::1", "version": float64(6)}},
	}))
	assert.Empty(t, ipv4Address(nil))
}
