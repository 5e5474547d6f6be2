// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution, source builds and binary releases alike.
//
// The vault template is written by `vaultrank init` as .vaultrank.yaml
// in the vault root. Values left commented fall back to the defaults in
// internal/config.
package configs

import _ "embed"

// VaultConfigTemplate is the starter project configuration written by
// `vaultrank init`. It documents every section with the common knobs
// commented out.
//
//go:embed vault-config.example.yaml
var VaultConfigTemplate string

// WeightsTemplate is the starter weight source written by
// `vaultrank init --weights`. The default block restates the hardcoded
// profile so edits start from known values.
//
//go:embed weights.example.yaml
var WeightsTemplate string

// UserConfigTemplate is the machine-level configuration written by
// `vaultrank config init` at ~/.config/vaultrank/config.yaml. Settings
// here apply to every vault on the machine.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
