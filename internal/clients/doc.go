// Package clients holds the outbound REST clients for the payment, member-sync,
// social login and video metadata providers. Every client is built on resty and
// takes its base URL from configuration so tests can point it at httptest servers.
package clients
