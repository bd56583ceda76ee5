package keystore

import "github.com/ethereum/go-ethereum/common"

// checksumEthereum renders a 0x-prefixed hex address with EIP-55 mixed-case
// checksum for display, leaving non-hex-looking input untouched.
func checksumEthereum(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}
