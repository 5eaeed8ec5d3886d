// Package provider defines the capability interface every secretspec
// backend implements, together with the address and identifier types the
// engine uses to talk to backends.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                    CLI Commands                             │
//	│              (cmd/secretspec/commands/)                     │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│            Orchestrator and Secret Resolver                 │
//	│         (internal/engine/, internal/resolve/)               │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│                Provider Interface                           │
//	│                 (pkg/provider/)                             │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │
//	┌─────────────────────────▼───────────────────────────────────┐
//	│              Provider Implementations                       │
//	│              (internal/providers/)                          │
//	│   keyring  dotenv  env  onepassword  bitwarden  bws  ...    │
//	└─────────────────────────────────────────────────────────────┘
//
// # Addressing
//
// A secret is addressed by project, profile and key. Backends are expected
// to namespace what they store by Address.Path ("{project}/{profile}/{key}")
// or an equivalent that is legal for the backend, so one physical store can
// hold several projects and profiles without collisions.
//
// # Error Handling
//
// Get distinguishes three outcomes:
//   - found=true: the backend returned a value
//   - found=false, err=nil: the backend answered and the key is not stored
//   - err is an UnavailableError: the backend could not be consulted
//
// Set distinguishes ReadOnlyError (the backend never accepts writes) from
// WriteRejectedError (the backend refused this particular write).
//
// # Provider identifiers
//
// Backends are selected with a URI whose scheme names the backend, for
// example keyring://, dotenv:.env.production, onepassword://work@Production
// or bws://project-id. ParseURI handles the shared syntax; each backend
// interprets host, path and query parameters itself.
//
// # Testing
//
// RunContractTests exercises the behaviour every backend must share:
// absence of unknown keys, value round trips with awkward characters,
// profile and project isolation, and the read-only contract.
package provider
