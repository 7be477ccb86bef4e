package domain

// Credentials are the provider-issued proof of a verified phone number,
// required to authorize lookup queries. An empty InstallationID means the
// provider rejected the verification even if the call itself succeeded.
type Credentials struct {
	InstallationID string
	CountryCode    string
}
