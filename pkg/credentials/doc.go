// Package credentials decrypts cloud account credentials stored as
// "ivhex:cipherhex" (AES-256-CBC, key = SHA-256 of ENCRYPTION_KEY) and parses
// provider credential documents.
package credentials
