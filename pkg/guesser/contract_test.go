package guesser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testContract = common.HexToAddress("0x4f39a2271B835cb5530b39e3dea57bfb9EE0484D")
	testGuesser  = common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B")
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// newRPCServer answers JSON-RPC requests with handler's result or error.
func newRPCServer(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, *rpcError)) *ethclient.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	client, err := ethclient.Dial(server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func callInput(t *testing.T, raw json.RawMessage) []byte {
	t.Helper()
	var arg struct {
		Input hexutil.Bytes `json:"input"`
		Data  hexutil.Bytes `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &arg))
	if len(arg.Input) > 0 {
		return arg.Input
	}
	return arg.Data
}

func uint256Hex(v int64) string {
	return fmt.Sprintf("0x%064x", v)
}

func newGuessLog(t *testing.T, guesser common.Address, value string, correct bool, date int64, block uint64) types.Log {
	t.Helper()
	data, err := ABI().Events["NewGuess"].Inputs.NonIndexed().Pack(value, correct, big.NewInt(date))
	require.NoError(t, err)
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{ABI().Events["NewGuess"].ID, common.BytesToHash(guesser.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func uintLog(t *testing.T, event string, v int64) types.Log {
	t.Helper()
	data, err := ABI().Events[event].Inputs.NonIndexed().Pack(big.NewInt(v))
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics:  []common.Hash{ABI().Events[event].ID},
		Data:    data,
	}
}

func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func TestReadOnlyCalls_Integration(t *testing.T) {
	selectors := map[string]int64{
		string(ABI().Methods["getGuessFee"].ID):               10000000000000000,
		string(ABI().Methods["getCurrentPrize"].ID):           123456789012345678,
		string(ABI().Methods["getCurrentNumberOfGuesses"].ID): 42,
	}
	client := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		if method != "eth_call" {
			return "0x0", nil
		}
		input := callInput(t, params[0])
		v, ok := selectors[string(input[:4])]
		if !ok {
			return nil, &rpcError{Code: -32000, Message: "unknown selector"}
		}
		return uint256Hex(v), nil
	})

	c := NewContract(testContract, client)
	ctx := context.Background()

	fee, err := c.GuessFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10000000000000000", fee.String())

	prize, err := c.CurrentPrize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678", prize.String())

	count, err := c.NumberOfGuesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count.Int64())
}

func TestSimulateGuess_Revert(t *testing.T) {
	client := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{
			Code:    3,
			Message: "execution reverted: You have to wait the cooldown time",
			Data:    revertData(t, "You have to wait the cooldown time"),
		}
	})

	c := NewContract(testContract, client)
	err := c.SimulateGuess(context.Background(), testGuesser, "1234", big.NewInt(1))
	require.Error(t, err)
	assert.Equal(t, "You have to wait the cooldown time", RevertReason(err))
	assert.Contains(t, err.Error(), "cooldown time")
}

func TestSimulateGuess_OK(t *testing.T) {
	var gotFrom, gotValue string
	client := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		var arg struct {
			From  string `json:"from"`
			Value string `json:"value"`
		}
		_ = json.Unmarshal(params[0], &arg)
		gotFrom, gotValue = arg.From, arg.Value
		return "0x", nil
	})

	c := NewContract(testContract, client)
	require.NoError(t, c.SimulateGuess(context.Background(), testGuesser, "1234", big.NewInt(10000000000000000)))
	assert.True(t, strings.EqualFold(testGuesser.Hex(), gotFrom))
	assert.Equal(t, "0x2386f26fc10000", gotValue)
}

func TestPastGuesses_Integration(t *testing.T) {
	logs := []types.Log{
		newGuessLog(t, testGuesser, "1111", false, 1700000000, 10),
		newGuessLog(t, testGuesser, "2222", true, 1700000100, 11),
	}
	var gotTopics [][]string
	client := newRPCServer(t, func(method string, params []json.RawMessage) (interface{}, *rpcError) {
		if method != "eth_getLogs" {
			return "0x0", nil
		}
		var q struct {
			FromBlock string     `json:"fromBlock"`
			Topics    [][]string `json:"topics"`
		}
		_ = json.Unmarshal(params[0], &q)
		gotTopics = q.Topics
		return logs, nil
	})

	c := NewContract(testContract, client)
	attempts, err := c.PastGuesses(context.Background(), testGuesser)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, "1111", attempts[0].Value)
	assert.False(t, attempts[0].Correct)
	assert.Equal(t, "2222", attempts[1].Value)
	assert.True(t, attempts[1].Correct)
	assert.Equal(t, int64(1700000100), attempts[1].Timestamp)
	assert.Equal(t, testGuesser, attempts[1].Guesser)

	require.Len(t, gotTopics, 2)
	assert.Equal(t, ABI().Events["NewGuess"].ID.Hex(), gotTopics[0][0])
	assert.Equal(t, common.BytesToHash(testGuesser.Bytes()).Hex(), gotTopics[1][0])
}

func TestDecodeLog(t *testing.T) {
	c := NewContract(testContract, nil)

	ev, err := c.DecodeLog(uintLog(t, "NewPrize", 500))
	require.NoError(t, err)
	assert.Equal(t, "NewPrize", string(ev.Kind))
	assert.Equal(t, int64(500), ev.Prize.Int64())

	ev, err = c.DecodeLog(uintLog(t, "NewGuessFee", 7))
	require.NoError(t, err)
	assert.Equal(t, "NewGuessFee", string(ev.Kind))
	assert.Equal(t, int64(7), ev.Fee.Int64())

	ev, err = c.DecodeLog(newGuessLog(t, testGuesser, "4321", true, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "4321", ev.Guess.Value)

	_, err = c.DecodeLog(types.Log{Topics: []common.Hash{{0x01}}})
	assert.Error(t, err)
	_, err = c.DecodeLog(types.Log{})
	assert.Error(t, err)
}
