package normalize

// StaticOwnership answers WalletOwnership from a fixed address->account
// map, built once at startup from config.InputsConfig.OwnedAddresses.
// Real deployments that need xpub-derived address sets can implement
// WalletOwnership themselves; this covers the common case of a short,
// manually-declared address list.
type StaticOwnership map[string]string

func (s StaticOwnership) OwnerOf(address string) (string, bool) {
	account, ok := s[address]
	return account, ok
}
