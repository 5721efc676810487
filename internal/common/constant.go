package common

// AuthorizationHeaderName carries the bearer token (access or refresh,
// depending on the route) on inbound requests.
const AuthorizationHeaderName = "Authorization"

// PasswordHeaderName carries the vault unlock secret on upload requests and
// the recovered secret on download responses.
const PasswordHeaderName = "Password"
