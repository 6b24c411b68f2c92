package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// TransferredTo sums the token units moved to recipient by the token's Transfer events in receipt.
func TransferredTo(receipt *types.Receipt, token, recipient common.Address) *big.Int {
	total := new(big.Int)
	if receipt == nil {
		return total
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != token || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != recipient || len(l.Data) != 32 {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}
