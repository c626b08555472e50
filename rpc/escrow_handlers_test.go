package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
	"escrowd/crypto"
	"escrowd/ledger"
	"escrowd/native/escrow"
	"escrowd/storage"
)

type rpcTestEnv struct {
	server  *Server
	handler *httptest.Server
	now     int64
	owner   crypto.Address
	buyer   crypto.Address
	seller  crypto.Address
	arbiter crypto.Address
}

func testAddr(fill byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newRPCTestEnv(t *testing.T) *rpcTestEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	env := &rpcTestEnv{
		now:     1_700_000_000,
		owner:   testAddr(0x01),
		buyer:   testAddr(0x0B),
		seller:  testAddr(0x0C),
		arbiter: testAddr(0x0D),
	}
	l := ledger.New(db)
	require.NoError(t, l.Credit(env.buyer, big.NewInt(10_000_000)))

	platform := escrow.NewPlatform(env.owner, testAddr(0x02))
	engine := escrow.NewEngine(escrow.NewStore(db), l, platform)
	engine.SetNowFunc(func() int64 { return env.now })
	journal := events.NewJournal(64)
	engine.SetEmitter(journal)

	env.server = NewServer(engine, journal, nil)
	env.server.SetAuthToken("")
	env.handler = httptest.NewServer(env.server)
	t.Cleanup(env.handler.Close)
	return env
}

func (env *rpcTestEnv) call(t *testing.T, method string, params interface{}, headers map[string]string) (*http.Response, RPCResponse) {
	t.Helper()
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(reqBody)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, env.handler.URL, bytes.NewReader(raw))
	require.NoError(t, err)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return resp, rpcResp
}

func (env *rpcTestEnv) createEscrow(t *testing.T) uint64 {
	t.Helper()
	resp, rpcResp := env.call(t, "escrow_create", map[string]interface{}{
		"buyer":       env.buyer.String(),
		"seller":      env.seller.String(),
		"arbiter":     env.arbiter.String(),
		"arbiterFee":  "100000",
		"deadline":    env.now + 3600,
		"description": "landing page rebuild",
		"amount":      "1000000",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	result := rpcResp.Result.(map[string]interface{})
	return uint64(result["id"].(float64))
}

func TestEscrowCreateAndGet(t *testing.T) {
	env := newRPCTestEnv(t)
	id := env.createEscrow(t)
	require.Equal(t, uint64(1), id)

	resp, rpcResp := env.call(t, "escrow_get", map[string]interface{}{"id": id}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	result := rpcResp.Result.(map[string]interface{})
	require.Equal(t, env.buyer.String(), result["buyer"])
	require.Equal(t, env.seller.String(), result["seller"])
	require.Equal(t, "1000000", result["amount"])
	require.Equal(t, "funded", result["status"])
	require.Equal(t, "landing page rebuild", result["description"])
}

func TestEscrowGetNotFound(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, rpcResp := env.call(t, "escrow_get", map[string]interface{}{"id": 404}, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeEscrowNotFound, rpcResp.Error.Code)
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	env := newRPCTestEnv(t)
	id := env.createEscrow(t)

	_, rpcResp := env.call(t, "escrow_markDelivered", map[string]interface{}{
		"id": id, "caller": env.seller.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = env.call(t, "escrow_dispute", map[string]interface{}{
		"id": id, "caller": env.buyer.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = env.call(t, "escrow_resolve", map[string]interface{}{
		"id": id, "caller": env.arbiter.String(), "favorBuyer": true,
	}, nil)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = env.call(t, "escrow_get", map[string]interface{}{"id": id}, nil)
	result := rpcResp.Result.(map[string]interface{})
	require.Equal(t, "refunded", result["status"])
	require.Equal(t, true, result["arbiterDecided"])
	require.Equal(t, true, result["arbiterDecision"])
}

func TestWrongRoleIsForbidden(t *testing.T) {
	env := newRPCTestEnv(t)
	id := env.createEscrow(t)

	resp, rpcResp := env.call(t, "escrow_markDelivered", map[string]interface{}{
		"id": id, "caller": env.buyer.String(),
	}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, codeEscrowForbidden, rpcResp.Error.Code)
}

func TestDoubleApproveConflicts(t *testing.T) {
	env := newRPCTestEnv(t)
	id := env.createEscrow(t)

	_, rpcResp := env.call(t, "escrow_markDelivered", map[string]interface{}{
		"id": id, "caller": env.seller.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)
	_, rpcResp = env.call(t, "escrow_approve", map[string]interface{}{
		"id": id, "caller": env.buyer.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)

	resp, rpcResp := env.call(t, "escrow_approve", map[string]interface{}{
		"id": id, "caller": env.buyer.String(),
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeEscrowConflict, rpcResp.Error.Code)
}

func TestAdminMethods(t *testing.T) {
	env := newRPCTestEnv(t)

	resp, rpcResp := env.call(t, "escrow_setPlatformFee", map[string]interface{}{
		"caller": env.owner.String(), "feeBps": 1100,
	}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeEscrowInvalidParams, rpcResp.Error.Code)

	_, rpcResp = env.call(t, "escrow_setPlatformFee", map[string]interface{}{
		"caller": env.owner.String(), "feeBps": 200,
	}, nil)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = env.call(t, "escrow_pause", map[string]interface{}{
		"caller": env.owner.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)

	resp, rpcResp = env.call(t, "escrow_create", map[string]interface{}{
		"buyer":    env.buyer.String(),
		"seller":   env.seller.String(),
		"arbiter":  env.arbiter.String(),
		"deadline": env.now + 3600,
		"amount":   "1000",
	}, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeEscrowPaused, rpcResp.Error.Code)

	_, rpcResp = env.call(t, "escrow_unpause", map[string]interface{}{
		"caller": env.owner.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)

	_, rpcResp = env.call(t, "escrow_create", map[string]interface{}{
		"buyer":    env.buyer.String(),
		"seller":   env.seller.String(),
		"arbiter":  env.arbiter.String(),
		"deadline": env.now + 3600,
		"amount":   "1000",
	}, nil)
	require.Nil(t, rpcResp.Error)
}

func TestBearerTokenGatesMutatingMethods(t *testing.T) {
	env := newRPCTestEnv(t)
	env.server.SetAuthToken("secret-token")

	resp, rpcResp := env.call(t, "escrow_create", map[string]interface{}{
		"buyer":    env.buyer.String(),
		"seller":   env.seller.String(),
		"arbiter":  env.arbiter.String(),
		"deadline": env.now + 3600,
		"amount":   "1000",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, codeUnauthorized, rpcResp.Error.Code)

	resp, rpcResp = env.call(t, "escrow_create", map[string]interface{}{
		"buyer":    env.buyer.String(),
		"seller":   env.seller.String(),
		"arbiter":  env.arbiter.String(),
		"deadline": env.now + 3600,
		"amount":   "1000",
	}, map[string]string{"Authorization": "Bearer secret-token"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)

	// Reads stay open.
	resp, rpcResp = env.call(t, "escrow_count", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, rpcResp.Error)
}

func TestListByParticipantAndCount(t *testing.T) {
	env := newRPCTestEnv(t)
	first := env.createEscrow(t)
	second := env.createEscrow(t)

	_, rpcResp := env.call(t, "escrow_count", nil, nil)
	require.Nil(t, rpcResp.Error)
	count := rpcResp.Result.(map[string]interface{})["count"].(float64)
	require.Equal(t, float64(2), count)

	_, rpcResp = env.call(t, "escrow_listByParticipant", map[string]interface{}{
		"address": env.seller.String(),
	}, nil)
	require.Nil(t, rpcResp.Error)
	rawIDs := rpcResp.Result.(map[string]interface{})["ids"].([]interface{})
	require.Len(t, rawIDs, 2)
	require.Equal(t, float64(first), rawIDs[0].(float64))
	require.Equal(t, float64(second), rawIDs[1].(float64))
}

func TestListEvents(t *testing.T) {
	env := newRPCTestEnv(t)
	env.createEscrow(t)

	_, rpcResp := env.call(t, "escrow_listEvents", map[string]interface{}{
		"prefix": "escrow.",
	}, nil)
	require.Nil(t, rpcResp.Error)

	raw, err := json.Marshal(rpcResp.Result)
	require.NoError(t, err)
	var entries []escrowEventJSON
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "escrow.created", entries[0].Type)
	require.Equal(t, "escrow.funded", entries[1].Type)
	require.Equal(t, "1", entries[0].Attributes["id"])
}

func TestMethodNotFound(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, rpcResp := env.call(t, "escrow_selfDestruct", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, codeMethodNotFound, rpcResp.Error.Code)
}

func TestRejectsNonPost(t *testing.T) {
	env := newRPCTestEnv(t)
	resp, err := http.Get(env.handler.URL + fmt.Sprintf("?method=%s", "escrow_count"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
