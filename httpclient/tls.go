package httpclient

import "crypto/tls"

// insecureTLSConfig backs --accept-invalid-certs (spec §6): skip
// certificate verification against self-signed or otherwise untrusted
// test targets. Isolated in its own file so the one InsecureSkipVerify in
// this module is easy to audit.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --accept-invalid-certs
}
