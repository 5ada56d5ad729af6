// Package money names the currencies and tokens this system accounts
// for. Amounts themselves are bare decimal.Decimal everywhere else in the
// accounting core (lotstore, engine, report); Asset is the tag carried
// alongside a decimal wherever a value's denomination matters, rather
// than a wrapper type bundling the two together.
package money

// Asset names a currency or token, e.g. "BTC", "USD", "ETH".
type Asset string
