package guesser

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// GuesserABI is the interface of the deployed SolidityGuesser contract.
const GuesserABI = `[
	{"type":"function","name":"getGuessFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCurrentPrize","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCurrentNumberOfGuesses","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"guess","stateMutability":"payable","inputs":[{"name":"_guess","type":"string"}],"outputs":[]},
	{"type":"event","name":"NewGuess","anonymous":false,"inputs":[
		{"name":"guesser","type":"address","indexed":true},
		{"name":"guess","type":"string","indexed":false},
		{"name":"correct","type":"bool","indexed":false},
		{"name":"date","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"NewPrize","anonymous":false,"inputs":[{"name":"prize","type":"uint256","indexed":false}]},
	{"type":"event","name":"NewGuessFee","anonymous":false,"inputs":[{"name":"guessFee","type":"uint256","indexed":false}]}
]`

const (
	methodGuessFee        = "getGuessFee"
	methodCurrentPrize    = "getCurrentPrize"
	methodNumberOfGuesses = "getCurrentNumberOfGuesses"
	methodGuess           = "guess"
)

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(GuesserABI))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ABI returns the parsed contract interface.
func ABI() abi.ABI {
	return parsedABI
}
