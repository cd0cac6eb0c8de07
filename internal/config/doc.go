// Package config loads the process configuration of the authx binary.
//
// Load builds one Config from these layers, highest precedence last:
//
//  1. Defaults.
//  2. Optional YAML file.
//  3. Optional .env file (never overrides variables already set).
//  4. Well-known unprefixed variables: JWT_SECRET, CLIENT_URL, DATABASE_URL, REDIS_URL,
//     PORT, APP_ENV.
//  5. AUTHX_ variables, where "__" maps to "." (AUTHX_STORE__DRIVER -> store.driver).
//  6. Command-line flags that were set explicitly.
//
// The result is validated before it is returned. A missing signing secret or a missing
// DSN for the selected store driver is an error.
package config
