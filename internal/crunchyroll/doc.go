// Package crunchyroll is the authenticated client for the Crunchyroll private
// REST API.
//
// A Client exchanges user credentials for an access/refresh token pair, keeps
// the access token fresh through a TokenLifecycle, and maps the content
// endpoints (series seasons, episodes, season episodes, stream documents) onto
// typed records. Every failure surfaces as an *AuthError or *APIError whose
// kind can be matched with errors.Is against the exported sentinels.
//
// The product identity (base URL, Basic client token, device user agent) lives
// in a single Identity value supplied at construction so call sites never
// carry literals of their own.
package crunchyroll
