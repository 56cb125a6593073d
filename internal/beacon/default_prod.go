//go:build !testmode

package beacon

// NewDefault creates the production drand authority for host and chainHash.
func NewDefault(host, chainHash string) Authority {
	return NewDrand(host, chainHash, nil, nil)
}
