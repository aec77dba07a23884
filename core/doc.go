// Package core contains the canonical install-domain contracts, entities,
// and configuration. Adapter and storage packages depend on this package;
// core must not depend on provider-specific or transport-specific code.
package core
