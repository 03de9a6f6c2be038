package guesser

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is a call rejected by the contract. Reason holds the decoded
// require() message when the node returned revert data.
type RevertError struct {
	Reason string
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

func wrapCallError(err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	hexData, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	data, decodeErr := hexutil.Decode(hexData)
	if decodeErr != nil {
		return err
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return &RevertError{Err: err}
	}
	return &RevertError{Reason: reason, Err: err}
}

// RevertReason returns the decoded revert reason carried by err, if any.
func RevertReason(err error) string {
	var revertErr *RevertError
	if errors.As(err, &revertErr) {
		return revertErr.Reason
	}
	return ""
}
