package service

import "errors"

// Error taxonomy shared by all services. Every failure a handler can see
// wraps one of these sentinels; the HTTP layer maps them to statuses
// with errors.Is.
var (
	// ErrNotFound: wallet, user or transaction absent or not owned by
	// the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized: nonce mismatch, signer mismatch or bad password.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedSignature: signature cannot be parsed or recovery
	// failed. Translated to an authorization failure at the boundary.
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrAlreadyExists: duplicate address or username registration.
	ErrAlreadyExists = errors.New("already exists")

	// ErrLastWallet: an account must retain at least one wallet.
	ErrLastWallet = errors.New("cannot delete the only wallet")

	// ErrUpstreamChain: RPC or build failure, including a definite
	// rejection of the broadcast. Nothing was written locally.
	ErrUpstreamChain = errors.New("upstream chain error")

	// ErrIndeterminate: the broadcast outcome is unknown. The
	// transaction may still land on-chain; callers must re-query the
	// chain before retrying.
	ErrIndeterminate = errors.New("broadcast outcome indeterminate")

	// ErrPostSubmitPersist: the broadcast succeeded but the ledger
	// write failed. The chain transaction exists without a local audit
	// entry and needs manual reconciliation.
	ErrPostSubmitPersist = errors.New("transaction broadcast but not recorded")
)
